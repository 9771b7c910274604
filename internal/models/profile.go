package models

import "fmt"

// Quality selects one of the fixed encoding profiles.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

func (q Quality) Valid() bool {
	switch q {
	case QualityLow, QualityMedium, QualityHigh:
		return true
	}
	return false
}

// ParseQuality validates a user-supplied quality tier.
func ParseQuality(s string) (Quality, error) {
	q := Quality(s)
	if !q.Valid() {
		return "", fmt.Errorf("unknown quality %q (want low, medium or high)", s)
	}
	return q, nil
}

// Profile is the fixed tuple of encoding parameters for one quality tier.
// Width and height describe the landscape geometry; vertical streams swap
// them.
type Profile struct {
	VideoBitrate string
	AudioBitrate string
	Maxrate      string
	Bufsize      string
	Width        int
	Height       int
	FPS          int
}

var profiles = map[Quality]Profile{
	QualityLow: {
		VideoBitrate: "1000k",
		AudioBitrate: "96k",
		Maxrate:      "1100k",
		Bufsize:      "2200k",
		Width:        854,
		Height:       480,
		FPS:          30,
	},
	QualityMedium: {
		VideoBitrate: "2500k",
		AudioBitrate: "128k",
		Maxrate:      "2750k",
		Bufsize:      "5500k",
		Width:        1280,
		Height:       720,
		FPS:          30,
	},
	QualityHigh: {
		VideoBitrate: "4500k",
		AudioBitrate: "192k",
		Maxrate:      "4950k",
		Bufsize:      "9900k",
		Width:        1920,
		Height:       1080,
		FPS:          30,
	},
}

// ProfileFor returns the encoding profile for a quality tier, with the
// geometry swapped for vertical streams. Unknown tiers fall back to medium.
func ProfileFor(q Quality, vertical bool) Profile {
	p, ok := profiles[q]
	if !ok {
		p = profiles[QualityMedium]
	}
	if vertical {
		p.Width, p.Height = p.Height, p.Width
	}
	return p
}

// Scale renders the profile geometry as an ffmpeg scale expression.
func (p Profile) Scale() string {
	return fmt.Sprintf("%d:%d", p.Width, p.Height)
}
