// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package browser

import (
	"strings"
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
)

func TestTimingsSummaries(t *testing.T) {
	var timings Timings
	for i := 1; i <= 10; i++ {
		timings.Record("acquireToken", time.Duration(i)*time.Millisecond)
	}
	timings.Record("consent", 3*time.Second)

	got, err := timings.Summaries()
	if err != nil {
		t.Fatalf("TestTimingsSummaries: got err == %s, want err == nil", err)
	}
	want := []Summary{
		{
			Name:   "acquireToken",
			Count:  10,
			Mean:   5500 * time.Microsecond,
			Median: 5500 * time.Microsecond,
			P90:    9 * time.Millisecond,
			Max:    10 * time.Millisecond,
		},
		{Name: "consent", Count: 1, Mean: 3 * time.Second, Median: 3 * time.Second, P90: 3 * time.Second, Max: 3 * time.Second},
	}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestTimingsSummaries: -want/+got:\n%s", diff)
	}
}

func TestTimingsEmpty(t *testing.T) {
	var timings Timings
	got, err := timings.Summaries()
	if err != nil {
		t.Fatalf("TestTimingsEmpty: got err == %s, want err == nil", err)
	}
	if len(got) != 0 {
		t.Errorf("TestTimingsEmpty: got %d summaries, want 0", len(got))
	}
}

func TestTimingsStart(t *testing.T) {
	var timings Timings
	stop := timings.Start("login")
	time.Sleep(5 * time.Millisecond)
	stop()

	got, err := timings.Summaries()
	if err != nil {
		t.Fatalf("TestTimingsStart: got err == %s, want err == nil", err)
	}
	if len(got) != 1 || got[0].Count != 1 {
		t.Fatalf("TestTimingsStart: got %v, want one sample for login", got)
	}
	if got[0].Max < 5*time.Millisecond {
		t.Errorf("TestTimingsStart: got %s, want >= 5ms", got[0].Max)
	}
	if s := got[0].String(); !strings.HasPrefix(s, "login: n=1 ") {
		t.Errorf("TestTimingsStart: String() == %q", s)
	}
}
