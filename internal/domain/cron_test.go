package domain

import (
	"errors"
	"reflect"
	"testing"
)

func TestCronMatrix(t *testing.T) {
	tests := []struct {
		name string
		cron Cron
		want []Schedule
	}{
		{
			"range expands leftmost outer",
			Cron{Minute: "1-2", Hour: "1", Day: "1", Month: "*", Weekday: "*"},
			[]Schedule{{1, 1, 1, -1, -1}, {2, 1, 1, -1, -1}},
		},
		{
			"all wildcards",
			Cron{Minute: "*", Hour: "*", Day: "*", Month: "*", Weekday: "*"},
			[]Schedule{{-1, -1, -1, -1, -1}},
		},
		{
			"empty fields read as wildcards",
			Cron{Minute: "30"},
			[]Schedule{{30, -1, -1, -1, -1}},
		},
		{
			"two ranges multiply",
			Cron{Minute: "0-1", Hour: "8-9", Day: "*", Month: "*", Weekday: "*"},
			[]Schedule{
				{0, 8, -1, -1, -1},
				{0, 9, -1, -1, -1},
				{1, 8, -1, -1, -1},
				{1, 9, -1, -1, -1},
			},
		},
		{
			"inverted range expands to nothing",
			Cron{Minute: "5-2", Hour: "*", Day: "*", Month: "*", Weekday: "*"},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cron.Matrix()
			if err != nil {
				t.Fatalf("Matrix() error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Matrix() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCronMatrixParseErrors(t *testing.T) {
	tests := []struct {
		name string
		cron Cron
	}{
		{"word", Cron{Minute: "lol"}},
		{"step syntax unsupported", Cron{Minute: "*/5"}},
		{"list syntax unsupported", Cron{Minute: "1,2"}},
		{"half range", Cron{Hour: "1-"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cron.Matrix()
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("Matrix() error = %v, want ParseError", err)
			}
		})
	}
}
