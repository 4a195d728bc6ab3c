package textutil

import (
	"reflect"
	"testing"
)

func TestNormalizeList(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil input", nil, nil},
		{"trims and drops empties", []string{" usb-c ", "", "  "}, []string{"usb-c"}},
		{"removes duplicates keeping order", []string{"hub", "usb-c", "hub "}, []string{"hub", "usb-c"}},
		{"all empty collapses to nil", []string{"", " "}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeList(tc.in); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("NormalizeList(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
