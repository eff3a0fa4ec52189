//go:build cuda

package native

/*
#cgo LDFLAGS: -lcudart -lcublas

// CUDA runtime and cuBLAS entry points are declared here so the package
// builds without the toolkit headers; linking still needs the libraries.
typedef void* cudaStream_t;
typedef int cudaError_t;

extern const char* cudaGetErrorString(cudaError_t err);
extern cudaError_t cudaGetDeviceCount(int* count);
extern cudaError_t cudaStreamCreate(cudaStream_t* stream);
extern cudaError_t cudaStreamDestroy(cudaStream_t stream);
extern cudaError_t cudaStreamSynchronize(cudaStream_t stream);
extern cudaError_t cudaMalloc(void** ptr, unsigned long long size);
extern cudaError_t cudaFree(void* ptr);
extern cudaError_t cudaMemcpyAsync(void* dst, const void* src, unsigned long long size, int kind, cudaStream_t stream);
extern cudaError_t cudaMallocHost(void** ptr, unsigned long long size);
extern cudaError_t cudaFreeHost(void* ptr);

#define QKERN_MEMCPY_H2D 1
#define QKERN_MEMCPY_D2H 2

typedef struct cublasContext* cublasHandle_t;
typedef int cublasStatus_t;

extern cublasStatus_t cublasCreate_v2(cublasHandle_t* handle);
extern cublasStatus_t cublasDestroy_v2(cublasHandle_t handle);
extern cublasStatus_t cublasSetStream_v2(cublasHandle_t handle, cudaStream_t stream);
extern cublasStatus_t cublasGemmEx(cublasHandle_t handle, int transa, int transb,
	int m, int n, int k, const void* alpha,
	const void* A, int Atype, int lda,
	const void* B, int Btype, int ldb,
	const void* beta, void* C, int Ctype, int ldc,
	int computeType, int algo);
extern cublasStatus_t cublasSgemv_v2(cublasHandle_t handle, int trans, int m, int n,
	const float* alpha, const float* A, int lda, const float* x, int incx,
	const float* beta, float* y, int incy);

static const char* qkernCudaErrorString(int err) { return cudaGetErrorString((cudaError_t)err); }
static int qkernCudaDeviceCount(int* out) { return (int)cudaGetDeviceCount(out); }
static int qkernCudaStreamCreate(cudaStream_t* out) { return (int)cudaStreamCreate(out); }
static int qkernCudaStreamDestroy(cudaStream_t s) { return (int)cudaStreamDestroy(s); }
static int qkernCudaStreamSync(cudaStream_t s) { return (int)cudaStreamSynchronize(s); }
static int qkernCudaMalloc(void** ptr, unsigned long long size) { return (int)cudaMalloc(ptr, size); }
static int qkernCudaFree(void* ptr) { return (int)cudaFree(ptr); }
static int qkernCudaMallocHost(void** ptr, unsigned long long size) { return (int)cudaMallocHost(ptr, size); }
static int qkernCudaFreeHost(void* ptr) { return (int)cudaFreeHost(ptr); }
static int qkernCudaMemcpyAsync(void* dst, const void* src, unsigned long long size, int kind, cudaStream_t s) {
	return (int)cudaMemcpyAsync(dst, src, size, kind, s);
}

static int qkernCublasCreate(cublasHandle_t* out) { return (int)cublasCreate_v2(out); }
static int qkernCublasDestroy(cublasHandle_t h) { return (int)cublasDestroy_v2(h); }
static int qkernCublasSetStream(cublasHandle_t h, cudaStream_t s) { return (int)cublasSetStream_v2(h, s); }
static int qkernCublasGemmEx(cublasHandle_t h, int transa, int transb, int m, int n, int k,
	const void* alpha, const void* A, int Atype, int lda, const void* B, int Btype, int ldb,
	const void* beta, void* C, int Ctype, int ldc, int computeType, int algo) {
	return (int)cublasGemmEx(h, transa, transb, m, n, k, alpha, A, Atype, lda, B, Btype, ldb, beta, C, Ctype, ldc, computeType, algo);
}
static int qkernCublasSgemv(cublasHandle_t h, int trans, int m, int n, const float* alpha,
	const float* A, int lda, const float* x, int incx, const float* beta, float* y, int incy) {
	return (int)cublasSgemv_v2(h, trans, m, n, alpha, A, lda, x, incx, beta, y, incy);
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// Stream is a CUDA stream. The zero value is the legacy default stream.
type Stream struct {
	ptr C.cudaStream_t
}

type BlasHandle struct {
	ptr C.cublasHandle_t
}

type DeviceBuffer struct {
	ptr unsafe.Pointer
}

// HostBuffer is page-locked host memory usable for async copies.
type HostBuffer struct {
	ptr unsafe.Pointer
}

func DeviceCount() (int, error) {
	var count C.int
	if err := cudaErr(C.qkernCudaDeviceCount(&count)); err != nil {
		return 0, err
	}
	return int(count), nil
}

func NewStream() (Stream, error) {
	var stream C.cudaStream_t
	if err := cudaErr(C.qkernCudaStreamCreate(&stream)); err != nil {
		return Stream{}, err
	}
	return Stream{ptr: stream}, nil
}

// StreamFromPointer wraps a cudaStream_t owned by the caller.
func StreamFromPointer(p unsafe.Pointer) Stream {
	return Stream{ptr: C.cudaStream_t(p)}
}

func (s Stream) Destroy() error {
	if s.ptr == nil {
		return nil
	}
	return cudaErr(C.qkernCudaStreamDestroy(s.ptr))
}

func (s Stream) Synchronize() error {
	return cudaErr(C.qkernCudaStreamSync(s.ptr))
}

func AllocDevice(bytes int64) (DeviceBuffer, error) {
	if bytes <= 0 {
		return DeviceBuffer{}, fmt.Errorf("device alloc size must be > 0")
	}
	var ptr unsafe.Pointer
	if err := cudaErr(C.qkernCudaMalloc(&ptr, C.ulonglong(bytes))); err != nil {
		return DeviceBuffer{}, err
	}
	return DeviceBuffer{ptr: ptr}, nil
}

func (b DeviceBuffer) Free() error {
	if b.ptr == nil {
		return nil
	}
	return cudaErr(C.qkernCudaFree(b.ptr))
}

func AllocHostPinned(bytes int64) (HostBuffer, error) {
	if bytes <= 0 {
		return HostBuffer{}, fmt.Errorf("host alloc size must be > 0")
	}
	var ptr unsafe.Pointer
	if err := cudaErr(C.qkernCudaMallocHost(&ptr, C.ulonglong(bytes))); err != nil {
		return HostBuffer{}, err
	}
	return HostBuffer{ptr: ptr}, nil
}

func (b HostBuffer) Free() error {
	if b.ptr == nil {
		return nil
	}
	return cudaErr(C.qkernCudaFreeHost(b.ptr))
}

func (b HostBuffer) Ptr() unsafe.Pointer {
	return b.ptr
}

func MemcpyH2DAsync(dst DeviceBuffer, src unsafe.Pointer, bytes int64, stream Stream) error {
	if bytes <= 0 {
		return nil
	}
	return cudaErr(C.qkernCudaMemcpyAsync(dst.ptr, src, C.ulonglong(bytes), C.QKERN_MEMCPY_H2D, stream.ptr))
}

func MemcpyD2HAsync(dst unsafe.Pointer, src DeviceBuffer, bytes int64, stream Stream) error {
	if bytes <= 0 {
		return nil
	}
	return cudaErr(C.qkernCudaMemcpyAsync(dst, src.ptr, C.ulonglong(bytes), C.QKERN_MEMCPY_D2H, stream.ptr))
}

func NewBlasHandle(stream Stream) (BlasHandle, error) {
	var handle C.cublasHandle_t
	if err := cublasErr(C.qkernCublasCreate(&handle)); err != nil {
		return BlasHandle{}, err
	}
	h := BlasHandle{ptr: handle}
	if err := h.SetStream(stream); err != nil {
		_ = h.Destroy()
		return BlasHandle{}, err
	}
	return h, nil
}

// SetStream binds subsequent cuBLAS calls on h to stream.
func (h BlasHandle) SetStream(stream Stream) error {
	return cublasErr(C.qkernCublasSetStream(h.ptr, stream.ptr))
}

func (h BlasHandle) Destroy() error {
	if h.ptr == nil {
		return nil
	}
	return cublasErr(C.qkernCublasDestroy(h.ptr))
}

type BlasDataType int

const (
	BlasF32 BlasDataType = 0 // CUDA_R_32F
	BlasF16 BlasDataType = 2 // CUDA_R_16F
)

type BlasComputeType int

const (
	BlasComputeF32 BlasComputeType = 68 // CUBLAS_COMPUTE_32F
)

type BlasOp int

const (
	BlasOpN BlasOp = 0 // CUBLAS_OP_N
	BlasOpT BlasOp = 1 // CUBLAS_OP_T
)

type BlasGemmAlgo int

const (
	BlasGemmDefault BlasGemmAlgo = -1 // CUBLAS_GEMM_DEFAULT
)

// GemmEx computes c = alpha*op(a)*op(b) + beta*c in column-major order.
func GemmEx(handle BlasHandle, transA, transB BlasOp, m, n, k int, alpha float32, a DeviceBuffer, aType BlasDataType, lda int, b DeviceBuffer, bType BlasDataType, ldb int, beta float32, c DeviceBuffer, cType BlasDataType, ldc int, compute BlasComputeType, algo BlasGemmAlgo) error {
	return cublasErr(C.qkernCublasGemmEx(
		handle.ptr, C.int(transA), C.int(transB),
		C.int(m), C.int(n), C.int(k),
		unsafe.Pointer(&alpha),
		a.ptr, C.int(aType), C.int(lda),
		b.ptr, C.int(bType), C.int(ldb),
		unsafe.Pointer(&beta),
		c.ptr, C.int(cType), C.int(ldc),
		C.int(compute), C.int(algo),
	))
}

// GemvF32 computes y = alpha*op(a)*x + beta*y for an m x n column-major a.
func GemvF32(handle BlasHandle, trans BlasOp, m, n int, alpha float32, a DeviceBuffer, lda int, x DeviceBuffer, incx int, beta float32, y DeviceBuffer, incy int) error {
	return cublasErr(C.qkernCublasSgemv(
		handle.ptr, C.int(trans), C.int(m), C.int(n),
		(*C.float)(unsafe.Pointer(&alpha)),
		(*C.float)(a.ptr), C.int(lda),
		(*C.float)(x.ptr), C.int(incx),
		(*C.float)(unsafe.Pointer(&beta)),
		(*C.float)(y.ptr), C.int(incy),
	))
}

func cublasErr(code C.int) error {
	if code == 0 {
		return nil
	}
	return fmt.Errorf("cublas error %d", int(code))
}

func cudaErr(code C.int) error {
	if code == 0 {
		return nil
	}
	msg := C.GoString(C.qkernCudaErrorString(code))
	return fmt.Errorf("cuda runtime error %d: %s", int(code), msg)
}
