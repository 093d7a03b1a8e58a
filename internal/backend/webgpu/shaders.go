package webgpu

// workgroupTile is the edge of the square workgroup used by matmulShader.
const workgroupTile = 16

// matmulShader performs matrix multiplication: C = A @ B.
// A is [M, K], B is [K, N], C is [M, N], all row-major.
// Each workgroup stages 16x16 tiles of A and B in shared memory.
const matmulShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    M: u32,  // rows of A and C
    K: u32,  // cols of A, rows of B
    N: u32,  // cols of B and C
}
@group(0) @binding(3) var<uniform> params: Params;

var<workgroup> tileA: array<array<f32, 16>, 16>;
var<workgroup> tileB: array<array<f32, 16>, 16>;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>,
        @builtin(local_invocation_id) local_id: vec3<u32>) {
    let row = global_id.y;
    let col = global_id.x;
    let ly = local_id.y;
    let lx = local_id.x;

    var sum: f32 = 0.0;
    let tiles = (params.K + 15u) / 16u;
    for (var t: u32 = 0u; t < tiles; t = t + 1u) {
        let aCol = t * 16u + lx;
        let bRow = t * 16u + ly;

        if (row < params.M && aCol < params.K) {
            tileA[ly][lx] = a[row * params.K + aCol];
        } else {
            tileA[ly][lx] = 0.0;
        }
        if (bRow < params.K && col < params.N) {
            tileB[ly][lx] = b[bRow * params.N + col];
        } else {
            tileB[ly][lx] = 0.0;
        }
        workgroupBarrier();

        for (var k: u32 = 0u; k < 16u; k = k + 1u) {
            sum = sum + tileA[ly][k] * tileB[k][lx];
        }
        workgroupBarrier();
    }

    if (row < params.M && col < params.N) {
        result[row * params.N + col] = sum;
    }
}
`
