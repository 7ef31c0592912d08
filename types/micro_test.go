package types

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestMicroString(t *testing.T) {
	tests := []struct {
		name    string
		amount  Micro
		display string
	}{
		{"Zero", 0, "0.000000"},
		{"OneMicro", 1, "0.000001"},
		{"OneMajor", 1_000_000, "1.000000"},
		{"Fractional", 1_500_000, "1.500000"},
		{"Max", MaxMicro, "9223372036854.775807"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.amount.String(); got != tt.display {
				t.Errorf("String: got %s, want %s", got, tt.display)
			}
		})
	}
}

func TestMicroArithmetic(t *testing.T) {
	t.Run("Add", func(t *testing.T) {
		got, err := Micro(100).Add(200)
		if err != nil {
			t.Fatal(err)
		}
		if got != 300 {
			t.Errorf("got %d, want 300", got)
		}
	})

	t.Run("AddOverflow", func(t *testing.T) {
		_, err := MaxMicro.Add(1)
		if !errors.Is(err, ErrOverflow) {
			t.Errorf("expected ErrOverflow, got %v", err)
		}
	})

	t.Run("Sub", func(t *testing.T) {
		got, err := Micro(500).Sub(200)
		if err != nil {
			t.Fatal(err)
		}
		if got != 300 {
			t.Errorf("got %d, want 300", got)
		}
	})

	t.Run("SubUnderflow", func(t *testing.T) {
		_, err := Micro(1).Sub(2)
		if !errors.Is(err, ErrUnderflow) {
			t.Errorf("expected ErrUnderflow, got %v", err)
		}
	})

	t.Run("Sum", func(t *testing.T) {
		got, err := Sum(1, 2, 3)
		if err != nil {
			t.Fatal(err)
		}
		if got != 6 {
			t.Errorf("got %d, want 6", got)
		}
		if _, err := Sum(MaxMicro, 1); !errors.Is(err, ErrOverflow) {
			t.Errorf("expected ErrOverflow, got %v", err)
		}
	})
}

func TestParseMajor(t *testing.T) {
	tests := []struct {
		input   string
		want    Micro
		wantErr bool
	}{
		{"1", 1_000_000, false},
		{"1.5", 1_500_000, false},
		{"0.000001", 1, false},
		{"0", 0, false},
		{"0.0000001", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
		{"9223372036854.775808", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMajor(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Errorf("expected ErrInvalidAmount, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMicroJSON(t *testing.T) {
	data, err := json.Marshal(Micro(2_500_000))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"micro":2500000,"display":"2.500000"}` {
		t.Errorf("unexpected JSON: %s", data)
	}

	var decoded Micro
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded != 2_500_000 {
		t.Errorf("object form: got %d", decoded)
	}

	if err := json.Unmarshal([]byte("42"), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded != 42 {
		t.Errorf("bare form: got %d", decoded)
	}
}

func TestMicroUnmarshalJSONRange(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Micro
		wantErr bool
	}{
		{"bare max", "9223372036854775807", MaxMicro, false},
		{"bare above max", "9223372036854775808", 0, true},
		{"bare uint64 max", "18446744073709551615", 0, true},
		{"object max", `{"micro":9223372036854775807}`, MaxMicro, false},
		{"object above max", `{"micro":9223372036854775808}`, 0, true},
		{"negative", "-1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded := Micro(7)
			err := json.Unmarshal([]byte(tt.input), &decoded)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Errorf("expected ErrInvalidAmount, got %v", err)
				}
				if decoded != 7 {
					t.Errorf("rejected input changed the value to %d", decoded)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if decoded != tt.want {
				t.Errorf("got %d, want %d", decoded, tt.want)
			}
		})
	}
}
