package aquifer

import (
	"errors"
	"math"
	"testing"
)

func TestWellFunction(t *testing.T) {
	// Reference values from Abramowitz & Stegun table 5.1 and the
	// convergent series for small u.
	tests := []struct {
		u        float64
		expected float64
	}{
		{1e-5, 10.935719},
		{1e-3, 6.331539},
		{0.01, 4.037929},
		{0.1, 1.822924},
		{0.5, 0.559774},
		{1.0, 0.219384},
		{5.0, 1.148296e-3},
		{10.0, 4.156969e-6},
		{30.0, 3.021500e-15},
	}

	for _, tt := range tests {
		got, err := WellFunction(tt.u)
		if err != nil {
			t.Fatalf("W(%v): unexpected error: %v", tt.u, err)
		}
		if rel := math.Abs(got-tt.expected) / tt.expected; rel > 1e-3 {
			t.Errorf("W(%v) = %v, want %v (relative error %v)", tt.u, got, tt.expected, rel)
		}
	}
}

func TestWellFunctionDomain(t *testing.T) {
	for _, u := range []float64{0, -1, -1e-9, math.NaN()} {
		got, err := WellFunction(u)
		if err == nil {
			t.Errorf("W(%v): expected domain error, got %v", u, got)
		}
		if !errors.Is(err, ErrDomain) {
			t.Errorf("W(%v): error %v is not ErrDomain", u, err)
		}
		if !math.IsNaN(got) {
			t.Errorf("W(%v) = %v, want NaN sentinel", u, got)
		}
	}
}

func TestWellFunctionUnderflow(t *testing.T) {
	// For very large u the e^-u factor underflows and zero is the correctly
	// rounded value; the call must still succeed.
	got, err := WellFunction(1000)
	if err != nil {
		t.Fatalf("W(1000): unexpected error: %v", err)
	}
	if got != 0 {
		t.Errorf("W(1000) = %v, want 0", got)
	}
}

func TestNewParams(t *testing.T) {
	tests := []struct {
		name    string
		T, S    float64
		wantErr bool
	}{
		{"valid", 500, 2e-4, false},
		{"zero T", 0, 2e-4, true},
		{"negative T", -10, 2e-4, true},
		{"infinite T", math.Inf(1), 2e-4, true},
		{"zero S", 500, 0, true},
		{"negative S", 500, -0.1, true},
		{"S at one", 500, 1, true},
		{"S above one", 500, 1.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParams(tt.T, tt.S)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidParameter) {
					t.Fatalf("NewParams(%v, %v): want ErrInvalidParameter, got %v", tt.T, tt.S, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewParams(%v, %v): unexpected error: %v", tt.T, tt.S, err)
			}
		})
	}
}

func TestTheisConcreteScenario(t *testing.T) {
	// Single well, T=500 m²/day, S=2e-4, Q=1000 m³/day, r=100 m, t=1 day.
	// u = 100²·2e-4/(4·500·1) = 1e-3, W(u) ≈ 6.3315, s ≈ 1.0076 m.
	p, err := NewParams(500, 2e-4)
	if err != nil {
		t.Fatal(err)
	}

	if u := p.U(100, 1); math.Abs(u-1e-3) > 1e-15 {
		t.Fatalf("u = %v, want 1e-3", u)
	}

	s, err := p.Theis(100, 1, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(s-1.007642) > 5e-4 {
		t.Errorf("Theis drawdown = %v, want 1.0076", s)
	}
}

func TestCooperJacobAgreesWithTheis(t *testing.T) {
	// Within the u < 0.01 validity regime the two solutions must agree to ~2%.
	p, _ := NewParams(500, 2e-4)
	tests := []struct{ r, tm float64 }{
		{100, 1},   // u = 1e-3
		{100, 10},  // u = 1e-4
		{50, 1},    // u = 2.5e-4
		{300, 10},  // u = 9e-4
		{500, 100}, // u = 2.5e-4
	}

	for _, tt := range tests {
		if u := p.U(tt.r, tt.tm); u >= CooperJacobMaxU {
			t.Fatalf("test case r=%v t=%v outside CJ regime (u=%v)", tt.r, tt.tm, u)
		}
		theis, err := p.Theis(tt.r, tt.tm, 1000)
		if err != nil {
			t.Fatal(err)
		}
		cj, err := p.CooperJacob(tt.r, tt.tm, 1000)
		if err != nil {
			t.Fatal(err)
		}
		if rel := math.Abs(theis-cj) / theis; rel > 0.02 {
			t.Errorf("r=%v t=%v: theis=%v cooper-jacob=%v differ by %v", tt.r, tt.tm, theis, cj, rel)
		}
	}
}

func TestTheisDomain(t *testing.T) {
	p, _ := NewParams(500, 2e-4)
	tests := []struct{ r, tm float64 }{
		{0, 1}, {-5, 1}, {100, 0}, {100, -2},
	}

	for _, tt := range tests {
		if _, err := p.Theis(tt.r, tt.tm, 1000); !errors.Is(err, ErrDomain) {
			t.Errorf("Theis(r=%v, t=%v): want ErrDomain, got %v", tt.r, tt.tm, err)
		}
		if _, err := p.CooperJacob(tt.r, tt.tm, 1000); !errors.Is(err, ErrDomain) {
			t.Errorf("CooperJacob(r=%v, t=%v): want ErrDomain, got %v", tt.r, tt.tm, err)
		}
	}
}

func TestTheisFinitePositiveAndDecreasing(t *testing.T) {
	p, _ := NewParams(500, 2e-4)
	prev := math.Inf(1)
	for _, r := range []float64{0.1, 1, 10, 100, 1000, 5000} {
		s, err := p.Theis(r, 1, 1000)
		if err != nil {
			t.Fatalf("r=%v: %v", r, err)
		}
		if math.IsNaN(s) || math.IsInf(s, 0) || s <= 0 {
			t.Fatalf("r=%v: drawdown %v not finite positive", r, s)
		}
		if s >= prev {
			t.Errorf("drawdown did not decrease with distance: s(%v)=%v >= %v", r, s, prev)
		}
		prev = s
	}
}

func TestThiem(t *testing.T) {
	p, _ := NewParams(500, 2e-4)

	s, err := p.Thiem(100, 1000, 1000)
	if err != nil {
		t.Fatal(err)
	}
	want := 1000 / (2 * math.Pi * 500) * math.Log(10)
	if math.Abs(s-want) > 1e-12 {
		t.Errorf("Thiem = %v, want %v", s, want)
	}

	// r > R returns the negative analytic value.
	s, err = p.Thiem(2000, 1000, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if s >= 0 {
		t.Errorf("Thiem beyond influence radius = %v, want negative", s)
	}

	h, err := p.ThiemHead(100, 1000, 1000, 100)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(h-(100-want)) > 1e-12 {
		t.Errorf("ThiemHead = %v, want %v", h, 100-want)
	}

	if _, err := p.Thiem(0, 1000, 1000); !errors.Is(err, ErrDomain) {
		t.Errorf("Thiem(r=0): want ErrDomain, got %v", err)
	}
	if _, err := p.Thiem(100, 0, 1000); !errors.Is(err, ErrDomain) {
		t.Errorf("Thiem(R=0): want ErrDomain, got %v", err)
	}
}

func TestRadiusOfInfluence(t *testing.T) {
	p, _ := NewParams(500, 2e-4)

	R, err := p.RadiusOfInfluence(1)
	if err != nil {
		t.Fatal(err)
	}
	if want := math.Sqrt(2.25 * 500 / 2e-4); math.Abs(R-want) > 1e-9 {
		t.Errorf("RadiusOfInfluence = %v, want %v", R, want)
	}

	// Cooper-Jacob drawdown vanishes exactly at the influence radius.
	s, err := p.CooperJacob(R, 1, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(s) > 1e-9 {
		t.Errorf("CooperJacob at influence radius = %v, want 0", s)
	}

	if _, err := p.RadiusOfInfluence(0); !errors.Is(err, ErrDomain) {
		t.Errorf("RadiusOfInfluence(0): want ErrDomain, got %v", err)
	}
}

func BenchmarkWellFunction(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := WellFunction(1e-3); err != nil {
			b.Fatal(err)
		}
	}
}
