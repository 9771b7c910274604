package models

import "testing"

func TestProfileForAllTiers(t *testing.T) {
	cases := []struct {
		quality Quality
		video   string
		audio   string
		maxrate string
		bufsize string
		scale   string
	}{
		{QualityLow, "1000k", "96k", "1100k", "2200k", "854:480"},
		{QualityMedium, "2500k", "128k", "2750k", "5500k", "1280:720"},
		{QualityHigh, "4500k", "192k", "4950k", "9900k", "1920:1080"},
	}

	for _, tc := range cases {
		p := ProfileFor(tc.quality, false)
		if p.VideoBitrate != tc.video {
			t.Errorf("%s: expected video bitrate %s, got %s", tc.quality, tc.video, p.VideoBitrate)
		}
		if p.AudioBitrate != tc.audio {
			t.Errorf("%s: expected audio bitrate %s, got %s", tc.quality, tc.audio, p.AudioBitrate)
		}
		if p.Maxrate != tc.maxrate {
			t.Errorf("%s: expected maxrate %s, got %s", tc.quality, tc.maxrate, p.Maxrate)
		}
		if p.Bufsize != tc.bufsize {
			t.Errorf("%s: expected bufsize %s, got %s", tc.quality, tc.bufsize, p.Bufsize)
		}
		if p.Scale() != tc.scale {
			t.Errorf("%s: expected scale %s, got %s", tc.quality, tc.scale, p.Scale())
		}
		if p.FPS != 30 {
			t.Errorf("%s: expected 30 fps, got %d", tc.quality, p.FPS)
		}
	}
}

func TestProfileForVerticalSwapsGeometry(t *testing.T) {
	for _, q := range []Quality{QualityLow, QualityMedium, QualityHigh} {
		landscape := ProfileFor(q, false)
		vertical := ProfileFor(q, true)

		if vertical.Width != landscape.Height || vertical.Height != landscape.Width {
			t.Errorf("%s: vertical geometry %s is not the swap of %s", q, vertical.Scale(), landscape.Scale())
		}
		if vertical.VideoBitrate != landscape.VideoBitrate {
			t.Errorf("%s: vertical must not change bitrate", q)
		}
	}
}

func TestProfileTuplesAreDistinct(t *testing.T) {
	seen := map[string]Quality{}
	for _, q := range []Quality{QualityLow, QualityMedium, QualityHigh} {
		for _, vertical := range []bool{false, true} {
			p := ProfileFor(q, vertical)
			key := p.VideoBitrate + "/" + p.Scale()
			if prev, dup := seen[key]; dup {
				t.Errorf("profile %s (vertical=%v) collides with %s", q, vertical, prev)
			}
			seen[key] = q
		}
	}
}

func TestProfileForUnknownFallsBackToMedium(t *testing.T) {
	p := ProfileFor(Quality("4k"), false)
	if p.VideoBitrate != "2500k" {
		t.Errorf("expected medium fallback, got %s", p.VideoBitrate)
	}
}

func TestParseQuality(t *testing.T) {
	if _, err := ParseQuality("high"); err != nil {
		t.Errorf("high should parse: %v", err)
	}
	if _, err := ParseQuality("720p"); err == nil {
		t.Error("720p should be rejected")
	}
}
