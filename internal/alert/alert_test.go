package alert

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/luki/hydromonitor/internal/sensor"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestEvaluatePH(t *testing.T) {
	tests := []struct {
		ph      float64
		wantMsg string
	}{
		{5.2, "critical pH: 5.2"},
		{7.8, "critical pH: 7.8"},
		{0, "critical pH: 0.0"},
		{5.5, ""},
		{7.5, ""},
		{6.4, ""},
	}
	for _, tt := range tests {
		got := Evaluate(sensor.Reading{PH: tt.ph, Temperature: 22}, testNow)
		if tt.wantMsg == "" {
			if len(got) != 0 {
				t.Errorf("pH %v: unexpected alerts %+v", tt.ph, got)
			}
			continue
		}
		if len(got) != 1 {
			t.Fatalf("pH %v: got %d alerts, want 1", tt.ph, len(got))
		}
		if got[0].Severity != SeverityError || got[0].Message != tt.wantMsg {
			t.Errorf("pH %v: got %+v", tt.ph, got[0])
		}
		if !got[0].CreatedAt.Equal(testNow) {
			t.Errorf("pH %v: CreatedAt %v", tt.ph, got[0].CreatedAt)
		}
	}
}

func TestEvaluateTemperature(t *testing.T) {
	for _, temp := range []float64{-5, 22, 29.99, 30} {
		if got := Evaluate(sensor.Reading{PH: 6.5, Temperature: temp}, testNow); len(got) != 0 {
			t.Errorf("temperature %v: unexpected alerts %+v", temp, got)
		}
	}
	got := Evaluate(sensor.Reading{PH: 6.5, Temperature: 31.24}, testNow)
	if len(got) != 1 || got[0].Severity != SeverityWarning {
		t.Fatalf("temperature 31.24: got %+v", got)
	}
	if !strings.Contains(got[0].Message, "31.2") {
		t.Errorf("message %q missing one-decimal value", got[0].Message)
	}
}

func TestEvaluateRulesIndependent(t *testing.T) {
	got := Evaluate(sensor.Reading{PH: 8.1, Temperature: 33}, testNow)
	if len(got) != 2 {
		t.Fatalf("got %d alerts, want 2", len(got))
	}
	if got[0].Severity != SeverityError || got[1].Severity != SeverityWarning {
		t.Errorf("table order not kept: %+v", got)
	}
	if got[0].Rule != "ph_range" || got[1].Rule != "temperature_high" {
		t.Errorf("rules: got %q, %q", got[0].Rule, got[1].Rule)
	}
	if got[0].ID == got[1].ID || got[0].ID == "" {
		t.Errorf("IDs not unique: %q %q", got[0].ID, got[1].ID)
	}
}

func TestEvaluateRepeatedConditionGetsNewID(t *testing.T) {
	r := sensor.Reading{PH: 4}
	a := Evaluate(r, testNow)
	b := Evaluate(r, testNow)
	if a[0].ID == b[0].ID {
		t.Error("two occurrences share an ID")
	}
}

func TestBufferEvictsOldest(t *testing.T) {
	b := NewBuffer(5)
	for i := 1; i <= 7; i++ {
		b.Append(New(SeverityInfo, fmt.Sprintf("n%d", i), testNow))
	}
	got := b.Entries()
	if len(got) != 5 {
		t.Fatalf("len: got %d, want 5", len(got))
	}
	for i, n := range got {
		if want := fmt.Sprintf("n%d", i+3); n.Message != want {
			t.Errorf("entry %d: got %q, want %q", i, n.Message, want)
		}
	}

	newest := b.Newest()
	if newest[0].Message != "n7" || newest[4].Message != "n3" {
		t.Errorf("Newest order: first %q last %q", newest[0].Message, newest[4].Message)
	}
}

func TestBufferAppendBatchKeepsOrder(t *testing.T) {
	b := NewBuffer(3)
	b.Append(New(SeverityInfo, "a", testNow))
	b.Append(
		New(SeverityError, "b", testNow),
		New(SeverityWarning, "c", testNow),
		New(SeverityInfo, "d", testNow),
	)
	var msgs []string
	for _, n := range b.Entries() {
		msgs = append(msgs, n.Message)
	}
	if strings.Join(msgs, ",") != "b,c,d" {
		t.Errorf("got %v", msgs)
	}
}

func TestBufferDefaultCapacity(t *testing.T) {
	if got := NewBuffer(0).Capacity(); got != DefaultCapacity {
		t.Errorf("capacity: got %d", got)
	}
}

func TestBufferConcurrentAppend(t *testing.T) {
	b := NewBuffer(5)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Append(New(SeverityInfo, "x", testNow))
				_ = b.Newest()
			}
		}()
	}
	wg.Wait()
	if b.Len() != 5 {
		t.Errorf("len: got %d, want 5", b.Len())
	}
}
