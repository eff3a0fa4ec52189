//go:build webgpu

package webgpu

const workgroupSize = 256

// maxGroupsX is the per-dimension dispatch limit guaranteed by WebGPU.
const maxGroupsX = 65535

// mulMatShader computes out[c*rows + r] = sum_i w[r*k + i] * x[c*k + i],
// which is the column-major destination layout used by MulMatQ. dims holds
// rows, cols, k and the x extent of the dispatch grid in invocations.
const mulMatShader = `
@group(0) @binding(0) var<storage, read> w : array<f32>;
@group(0) @binding(1) var<storage, read> x : array<f32>;
@group(0) @binding(2) var<storage, read> dims : array<u32>;
@group(0) @binding(3) var<storage, read_write> out : array<f32>;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid : vec3<u32>) {
	let rows = dims[0];
	let cols = dims[1];
	let k = dims[2];
	let idx = gid.y * dims[3] + gid.x;
	if (idx >= rows * cols) {
		return;
	}
	let c = idx / rows;
	let r = idx % rows;
	var acc : f32 = 0.0;
	for (var i : u32 = 0u; i < k; i = i + 1u) {
		acc = acc + w[r * k + i] * x[c * k + i];
	}
	out[idx] = acc;
}
`

// grid splits n invocations into a dispatch that respects maxGroupsX.
func grid(n int) (gx, gy uint32) {
	groups := (n + workgroupSize - 1) / workgroupSize
	if groups <= maxGroupsX {
		return uint32(groups), 1
	}
	gy = uint32((groups + maxGroupsX - 1) / maxGroupsX)
	return maxGroupsX, gy
}
