package webgpu

import "github.com/gmlewis/pbnj/engine"

// buildUniforms packs the frame state into the Uniforms struct of wgslShader.
func buildUniforms(f *engine.Frame) ([]float32, *engine.Volume, error) {
	p, err := engine.NewShaderParams(f, maxIsovalues)
	if err != nil {
		return nil, nil, err
	}
	v := p.Volume
	dims := v.Field.Dims()

	u := make([]float32, uniformFloats)
	copy(u[0:16], p.InvViewProj[:])
	copy(u[16:19], p.Eye[:])
	u[19] = float32(p.Samples)
	copy(u[20:23], v.Lo[:])
	if p.OneSided {
		u[23] = 1
	}
	u[24], u[25], u[26] = float32(dims[0]), float32(dims[1]), float32(dims[2])
	u[27] = engine.Ambient
	copy(u[28:31], p.Background[:])
	copy(u[32:35], p.LightDir[:])
	copy(u[36:39], p.Material.Kd[:])
	u[39] = p.Material.Ns
	copy(u[40:43], p.Material.Ks[:])
	u[43] = p.Material.D
	u[44], u[45] = v.TF.ValueRange[0], v.TF.ValueRange[1]
	if p.Isosurface {
		u[46] = 1
	}
	u[47] = float32(len(p.Isovalues))
	copy(u[48:52], p.Isovalues)
	u[52], u[53] = float32(p.Width), float32(p.Height)
	return u, v, nil
}

const wgslShader = `
struct Uniforms {
    invViewProj: mat4x4f,
    eye: vec4f,
    lo: vec4f,
    dims: vec4f,
    background: vec4f,
    lightDir: vec4f,
    kd: vec4f,
    ks: vec4f,
    valueRange: vec4f,
    iso: vec4f,
    viewport: vec4f,
};

@group(0) @binding(0) var<uniform> uniforms: Uniforms;
@group(0) @binding(1) var<storage, read> voxels: array<f32>;
@group(0) @binding(2) var<storage, read> table: array<vec4f>;

const stepSize = 0.5;

@vertex
fn vs_main(@location(0) vert: vec2f) -> @builtin(position) vec4f {
    return vec4f(vert, 0.0, 1.0);
}

fn voxel(p: vec3i) -> f32 {
    let d = vec3i(uniforms.dims.xyz);
    let q = clamp(p, vec3i(0), d - vec3i(1));
    return voxels[u32(q.x + d.x * (q.y + d.y * q.z))];
}

fn sampleField(p: vec3f) -> f32 {
    let c = clamp(p, vec3f(0.0), uniforms.dims.xyz - vec3f(1.0));
    let c0 = floor(c);
    let f = c - c0;
    let i = vec3i(c0);
    let c00 = mix(voxel(i), voxel(i + vec3i(1, 0, 0)), f.x);
    let c10 = mix(voxel(i + vec3i(0, 1, 0)), voxel(i + vec3i(1, 1, 0)), f.x);
    let c01 = mix(voxel(i + vec3i(0, 0, 1)), voxel(i + vec3i(1, 0, 1)), f.x);
    let c11 = mix(voxel(i + vec3i(0, 1, 1)), voxel(i + vec3i(1, 1, 1)), f.x);
    return mix(mix(c00, c10, f.y), mix(c01, c11, f.y), f.z);
}

fn sampleWorld(p: vec3f) -> f32 {
    return sampleField(p - uniforms.lo.xyz);
}

fn gradient(p: vec3f) -> vec3f {
    let h = 0.5;
    return vec3f(
        sampleWorld(p + vec3f(h, 0.0, 0.0)) - sampleWorld(p - vec3f(h, 0.0, 0.0)),
        sampleWorld(p + vec3f(0.0, h, 0.0)) - sampleWorld(p - vec3f(0.0, h, 0.0)),
        sampleWorld(p + vec3f(0.0, 0.0, h)) - sampleWorld(p - vec3f(0.0, 0.0, h)));
}

fn classify(s: f32) -> vec4f {
    let span = max(uniforms.valueRange.y - uniforms.valueRange.x, 1e-20);
    let t = clamp((s - uniforms.valueRange.x) / span, 0.0, 1.0);
    return table[u32(t * 255.0 + 0.5)];
}

fn intersectBox(o: vec3f, d: vec3f) -> vec2f {
    let lo = uniforms.lo.xyz;
    let hi = lo + uniforms.dims.xyz - vec3f(1.0);
    let dd = select(d, vec3f(1e-8), abs(d) < vec3f(1e-8));
    let t0 = (lo - o) / dd;
    let t1 = (hi - o) / dd;
    let tn = min(t0, t1);
    let tf = max(t0, t1);
    return vec2f(max(max(max(tn.x, tn.y), tn.z), 0.0), min(min(tf.x, tf.y), tf.z));
}

fn integrate(o: vec3f, d: vec3f, t0: f32, t1: f32) -> vec4f {
    var acc = vec4f(0.0);
    for (var t = t0; t <= t1; t = t + stepSize) {
        let c = classify(sampleWorld(o + d * t));
        let a = 1.0 - pow(1.0 - min(c.a, 1.0), stepSize);
        acc = acc + vec4f(c.rgb * a, a) * (1.0 - acc.a);
        if (acc.a >= 0.99) {
            break;
        }
    }
    return acc;
}

fn surface(o: vec3f, d: vec3f, t0: f32, t1: f32) -> vec4f {
    let n = u32(uniforms.valueRange.w);
    var prevT = t0;
    var prev = sampleWorld(o + d * t0);
    var hitT = -1.0;
    loop {
        if (prevT >= t1 || hitT >= 0.0) {
            break;
        }
        let t = min(prevT + stepSize, t1);
        let cur = sampleWorld(o + d * t);
        for (var i = 0u; i < n; i = i + 1u) {
            let level = uniforms.iso[i];
            if ((prev - level) * (cur - level) <= 0.0 && prev != cur) {
                let tc = prevT + (t - prevT) * (level - prev) / (cur - prev);
                if (hitT < 0.0 || tc < hitT) {
                    hitT = tc;
                }
            }
        }
        prevT = t;
        prev = cur;
    }
    if (hitT < 0.0) {
        return vec4f(0.0);
    }

    let p = o + d * hitT;
    var nrm = gradient(p);
    if (length(nrm) == 0.0) {
        nrm = -d;
    }
    nrm = normalize(nrm);
    if (dot(nrm, d) > 0.0) {
        if (uniforms.lo.w > 0.5) {
            return vec4f(0.0, 0.0, 0.0, 1.0);
        }
        nrm = -nrm;
    }
    let toLight = -normalize(uniforms.lightDir.xyz);
    let ndl = max(dot(nrm, toLight), 0.0);
    let h = normalize(toLight - d);
    var spec = 0.0;
    if (ndl > 0.0) {
        spec = pow(max(dot(nrm, h), 0.0), uniforms.kd.w);
    }
    let color = uniforms.kd.rgb * (uniforms.dims.w + ndl) + uniforms.ks.rgb * spec;
    let alpha = uniforms.ks.w;
    return vec4f(color * alpha, alpha);
}

fn hash(p: vec2f) -> f32 {
    return fract(sin(dot(p, vec2f(12.9898, 78.233))) * 43758.5453);
}

@fragment
fn fs_main(@builtin(position) pos: vec4f) -> @location(0) vec4f {
    let samples = max(u32(uniforms.eye.w), 1u);
    let o = uniforms.eye.xyz;
    var sum = vec4f(0.0);
    for (var s = 0u; s < samples; s = s + 1u) {
        var jitter = vec2f(0.0);
        if (samples > 1u) {
            jitter = vec2f(hash(pos.xy + f32(s)), hash(pos.yx + f32(s) * 7.0)) - vec2f(0.5);
        }
        let px = pos.xy + jitter;
        let ndc = vec2f(px.x / uniforms.viewport.x * 2.0 - 1.0, 1.0 - px.y / uniforms.viewport.y * 2.0);
        let pn = uniforms.invViewProj * vec4f(ndc, -1.0, 1.0);
        let d = normalize(pn.xyz / pn.w - o);
        let hit = intersectBox(o, d);
        var acc = vec4f(0.0);
        if (hit.x <= hit.y) {
            if (uniforms.valueRange.z > 0.5) {
                acc = surface(o, d, hit.x, hit.y);
            } else {
                acc = integrate(o, d, hit.x, hit.y);
            }
        }
        sum = sum + vec4f(acc.rgb + uniforms.background.rgb * (1.0 - acc.a), acc.a);
    }
    return sum / f32(samples);
}
`
