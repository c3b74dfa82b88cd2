package vigil

import (
	"math"
	"math/bits"
	"sync"
)

// WindowFunc selects the taper applied before a transform.
type WindowFunc int

const (
	// WindowRect applies no taper.
	WindowRect WindowFunc = iota
	// WindowHann applies the Hann taper.
	WindowHann
	// WindowHamming applies the Hamming taper.
	WindowHamming
	// WindowBlackman applies the Blackman taper.
	WindowBlackman
)

// String returns the window name.
func (w WindowFunc) String() string {
	switch w {
	case WindowHann:
		return "hann"
	case WindowHamming:
		return "hamming"
	case WindowBlackman:
		return "blackman"
	default:
		return "rect"
	}
}

// ParseWindowFunc maps a config string to a window.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch name {
	case "", "rect", "rectangular", "none":
		return WindowRect, nil
	case "hann", "hanning":
		return WindowHann, nil
	case "hamming":
		return WindowHamming, nil
	case "blackman":
		return WindowBlackman, nil
	default:
		return 0, newConfigError("window", "unknown window "+name)
	}
}

// applyWindow tapers the signal in place.
func applyWindow(signal []float64, w WindowFunc) {
	n := len(signal)
	if n < 2 || w == WindowRect {
		return
	}
	den := float64(n - 1)
	for i := range signal {
		t := float64(i) / den
		switch w {
		case WindowHann:
			signal[i] *= 0.5 * (1 - math.Cos(2*math.Pi*t))
		case WindowHamming:
			signal[i] *= 0.54 - 0.46*math.Cos(2*math.Pi*t)
		case WindowBlackman:
			signal[i] *= 0.42 - 0.5*math.Cos(2*math.Pi*t) + 0.08*math.Cos(4*math.Pi*t)
		}
	}
}

// nextPowerOfTwo returns the smallest power of two >= n, minimum 2.
func nextPowerOfTwo(n int) int {
	if n < 2 {
		return 2
	}
	if n&(n-1) == 0 {
		return n
	}
	return 1 << bits.Len(uint(n))
}

// twiddleCache holds per-size precomputed twiddle factors. Transform
// sizes repeat heavily in streaming use, so the tables are computed once
// per size and shared.
var twiddleCache = struct {
	mu     sync.Mutex
	tables map[int][]complex128
}{tables: make(map[int][]complex128)}

func twiddles(n int) []complex128 {
	twiddleCache.mu.Lock()
	defer twiddleCache.mu.Unlock()
	if tw, ok := twiddleCache.tables[n]; ok {
		return tw
	}
	tw := make([]complex128, n/2)
	for k := range tw {
		angle := -2 * math.Pi * float64(k) / float64(n)
		tw[k] = complex(math.Cos(angle), math.Sin(angle))
	}
	twiddleCache.tables[n] = tw
	return tw
}

// FFT computes the in-order complex spectrum of a real signal. The input
// is zero-padded to the next power of two. The returned slice has the
// padded length.
func FFT(signal []float64) []complex128 {
	n := nextPowerOfTwo(len(signal))
	buf := make([]complex128, n)
	for i, v := range signal {
		buf[i] = complex(v, 0)
	}
	fftInPlace(buf)
	return buf
}

// fftInPlace runs an iterative radix-2 Cooley-Tukey transform. len(buf)
// must be a power of two.
func fftInPlace(buf []complex128) {
	n := len(buf)
	if n < 2 {
		return
	}

	// Bit-reversal permutation.
	shift := bits.UintSize - uint(bits.Len(uint(n-1)))
	for i := 0; i < n; i++ {
		j := int(bits.Reverse(uint(i)) >> shift)
		if j > i {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}

	tw := twiddles(n)
	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		step := n / size
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				w := tw[k*step]
				a := buf[start+k]
				b := buf[start+k+half] * w
				buf[start+k] = a + b
				buf[start+k+half] = a - b
			}
		}
	}
}

// Magnitudes returns the single-sided magnitude spectrum |X[k]|/N for
// k in [0, N/2]. The normalization by N keeps magnitudes comparable
// across transform sizes.
func Magnitudes(spectrum []complex128) []float64 {
	n := len(spectrum)
	if n == 0 {
		return nil
	}
	out := make([]float64, n/2+1)
	for k := range out {
		out[k] = cmplxAbs(spectrum[k]) / float64(n)
	}
	return out
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// BinFrequency returns the center frequency of bin k for a transform of
// fftSize samples at the given sample rate.
func BinFrequency(k, fftSize int, sampleRate float64) float64 {
	if fftSize <= 0 {
		return 0
	}
	return float64(k) * sampleRate / float64(fftSize)
}
