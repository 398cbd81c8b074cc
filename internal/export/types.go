package export

// Entry is one event of an edit decision list, in source-video seconds.
type Entry struct {
	ClipName  string
	MediaPath string
	Start     float64
	End       float64
}

// Duration returns the length of the entry, never negative.
func (e Entry) Duration() float64 {
	if e.End < e.Start {
		return 0
	}
	return e.End - e.Start
}

// Result describes a written export file.
type Result struct {
	Format     string `json:"format"`
	OutputPath string `json:"output_path"`
	ClipCount  int    `json:"clip_count"`
}
