package session

import (
	"errors"
	"reflect"
	"testing"
)

func TestSession_VideoLifecycle(t *testing.T) {
	s := New("sess-1")

	if _, ok := s.VideoID(); ok {
		t.Fatal("new session should have no video")
	}

	if err := s.SetVideo("vid-1", "workout.mov"); err != nil {
		t.Fatalf("SetVideo() error = %v", err)
	}
	id, ok := s.VideoID()
	if !ok || id != "vid-1" {
		t.Fatalf("VideoID() = %q, %v", id, ok)
	}
	if s.Filename() != "workout.mov" {
		t.Errorf("Filename() = %q", s.Filename())
	}

	if err := s.SetVideo("vid-2", "other.mov"); err == nil {
		t.Fatal("second SetVideo should fail")
	}
	if id, _ := s.VideoID(); id != "vid-1" {
		t.Errorf("video id changed to %q", id)
	}
}

func TestMovements_AddCountMatchesClicks(t *testing.T) {
	for clicks := 0; clicks <= 6; clicks++ {
		var m Movements
		for i := 0; i < clicks; i++ {
			if idx := m.Add(); idx != i {
				t.Fatalf("Add() #%d returned index %d", i, idx)
			}
			if err := m.Set(i, string(rune('A'+i))); err != nil {
				t.Fatalf("Set(%d) error = %v", i, err)
			}
		}
		if m.Len() != clicks {
			t.Fatalf("Len() = %d after %d clicks", m.Len(), clicks)
		}
		for i, e := range m.Entries() {
			if e != string(rune('A'+i)) {
				t.Errorf("entry %d = %q, order not preserved", i, e)
			}
		}
	}
}

func TestMovements_LabelsDropsBlanks(t *testing.T) {
	var m Movements
	for _, v := range []string{"Squat", "  ", "Lunge", "", "\tgoblet squat \n"} {
		i := m.Add()
		m.Set(i, v)
	}

	got := m.Labels()
	want := []string{"Squat", "Lunge", "goblet squat"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Labels() = %q, want %q", got, want)
	}
}

func TestMovements_SetOutOfRange(t *testing.T) {
	var m Movements
	m.Add()
	if err := m.Set(3, "x"); !errors.Is(err, ErrLabelIndex) {
		t.Fatalf("err = %v, want ErrLabelIndex", err)
	}
	if err := m.Set(-1, "x"); !errors.Is(err, ErrLabelIndex) {
		t.Fatalf("err = %v, want ErrLabelIndex", err)
	}
}

func TestCleanLabels_Empty(t *testing.T) {
	got := CleanLabels(nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("CleanLabels(nil) = %#v, want empty non-nil slice", got)
	}
}
