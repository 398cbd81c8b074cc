package probe

import (
	"errors"
	"testing"
)

func TestParse_VideoStream(t *testing.T) {
	out := `{
		"streams": [
			{"codec_type": "audio", "codec_name": "aac", "duration": "61.0"},
			{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "duration": "60.5"}
		],
		"format": {"duration": "61.2", "size": "1048576"}
	}`

	res, err := Parse([]byte(out))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Codec != "h264" || res.Width != 1920 || res.Height != 1080 {
		t.Errorf("stream = %+v", res)
	}
	if res.Duration != 60.5 {
		t.Errorf("Duration = %v, want stream duration 60.5", res.Duration)
	}
	if res.SizeBytes != 1048576 {
		t.Errorf("SizeBytes = %d", res.SizeBytes)
	}
}

func TestParse_FallsBackToFormatDuration(t *testing.T) {
	out := `{"streams":[{"codec_type":"video","codec_name":"hevc"}],"format":{"duration":" 12.25 "}}`

	res, err := Parse([]byte(out))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Duration != 12.25 {
		t.Errorf("Duration = %v, want 12.25", res.Duration)
	}
}

func TestParse_NoVideo(t *testing.T) {
	_, err := Parse([]byte(`{"streams":[{"codec_type":"audio"}],"format":{}}`))
	if !errors.Is(err, ErrNoVideoStream) {
		t.Fatalf("err = %v, want ErrNoVideoStream", err)
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed output")
	}
}
