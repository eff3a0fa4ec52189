package simd

import "golang.org/x/sys/cpu"

// CPUFeatures holds detected CPU capabilities, checked once at init.
type CPUFeatures struct {
	AVX2       bool
	FMA        bool
	AVX512F    bool
	AVX512VNNI bool
	NEON       bool
	DotProd    bool

	// SIMDDot is set when the int8 block dot runs on the archsimd path.
	SIMDDot bool
}

var features = detectFeatures()

func detectFeatures() CPUFeatures {
	f := CPUFeatures{
		AVX2:       cpu.X86.HasAVX2,
		FMA:        cpu.X86.HasFMA,
		AVX512F:    cpu.X86.HasAVX512F,
		AVX512VNNI: cpu.X86.HasAVX512VNNI,
		NEON:       cpu.ARM64.HasASIMD,
		DotProd:    cpu.ARM64.HasASIMDDP,
	}
	f.SIMDDot = archsimdBuilt && f.AVX2
	return f
}

// Features returns the capabilities detected for this process.
func Features() CPUFeatures {
	return features
}

// Path names the integer dot implementation the microkernels use.
func (f CPUFeatures) Path() string {
	if f.SIMDDot {
		return "avx2"
	}
	return "scalar"
}

// Map flattens the feature set for reporting.
func (f CPUFeatures) Map() map[string]bool {
	return map[string]bool{
		"avx2":       f.AVX2,
		"fma":        f.FMA,
		"avx512f":    f.AVX512F,
		"avx512vnni": f.AVX512VNNI,
		"neon":       f.NEON,
		"dotprod":    f.DotProd,
		"archsimd":   archsimdBuilt,
		"simd_int8":  f.SIMDDot,
	}
}
