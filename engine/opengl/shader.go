package opengl

var uniformNames = []string{
	"invViewProj", "eye", "lo", "dims", "background", "lightDir", "kd", "ks", "ns", "opacity",
	"ambient", "valueRange", "viewport", "iso", "numIso", "isosurface", "oneSided", "samples",
	"volumeTex", "tableTex",
}

const vertexShader = "#version 410 core\nin vec2 vert;\nvoid main() {\n\tgl_Position = vec4(vert, 0.0, 1.0);\n}\x00"

const fragmentShader = `#version 410 core
precision highp float;
precision highp int;

uniform mat4 invViewProj;
uniform vec3 eye;
uniform vec3 lo;
uniform vec3 dims;
uniform vec3 background;
uniform vec3 lightDir;
uniform vec3 kd;
uniform vec3 ks;
uniform float ns;
uniform float opacity;
uniform float ambient;
uniform vec2 valueRange;
uniform vec2 viewport;
uniform vec4 iso;
uniform int numIso;
uniform int isosurface;
uniform int oneSided;
uniform int samples;
uniform sampler3D volumeTex;
uniform sampler2D tableTex;

out vec4 outputColor;

const float stepSize = 0.5;

float sampleWorld(vec3 p) {
	vec3 v = clamp(p - lo, vec3(0.0), dims - vec3(1.0));
	return texture(volumeTex, (v + vec3(0.5)) / dims).r;
}

vec3 gradient(vec3 p) {
	float h = 0.5;
	return vec3(
		sampleWorld(p + vec3(h, 0.0, 0.0)) - sampleWorld(p - vec3(h, 0.0, 0.0)),
		sampleWorld(p + vec3(0.0, h, 0.0)) - sampleWorld(p - vec3(0.0, h, 0.0)),
		sampleWorld(p + vec3(0.0, 0.0, h)) - sampleWorld(p - vec3(0.0, 0.0, h)));
}

vec4 classify(float s) {
	float span = max(valueRange.y - valueRange.x, 1e-20);
	float t = clamp((s - valueRange.x) / span, 0.0, 1.0);
	return texelFetch(tableTex, ivec2(int(t * 255.0 + 0.5), 0), 0);
}

vec2 intersectBox(vec3 o, vec3 d) {
	vec3 hi = lo + dims - vec3(1.0);
	vec3 dd = mix(d, vec3(1e-8), lessThan(abs(d), vec3(1e-8)));
	vec3 t0 = (lo - o) / dd;
	vec3 t1 = (hi - o) / dd;
	vec3 tn = min(t0, t1);
	vec3 tf = max(t0, t1);
	return vec2(max(max(max(tn.x, tn.y), tn.z), 0.0), min(min(tf.x, tf.y), tf.z));
}

vec4 integrate(vec3 o, vec3 d, float t0, float t1) {
	vec4 acc = vec4(0.0);
	for (float t = t0; t <= t1; t += stepSize) {
		vec4 c = classify(sampleWorld(o + d * t));
		float a = 1.0 - pow(1.0 - min(c.a, 1.0), stepSize);
		acc += vec4(c.rgb * a, a) * (1.0 - acc.a);
		if (acc.a >= 0.99) {
			break;
		}
	}
	return acc;
}

vec4 surface(vec3 o, vec3 d, float t0, float t1) {
	float prevT = t0;
	float prev = sampleWorld(o + d * t0);
	float hitT = -1.0;
	while (prevT < t1 && hitT < 0.0) {
		float t = min(prevT + stepSize, t1);
		float cur = sampleWorld(o + d * t);
		for (int i = 0; i < numIso; i++) {
			float level = iso[i];
			if ((prev - level) * (cur - level) <= 0.0 && prev != cur) {
				float tc = prevT + (t - prevT) * (level - prev) / (cur - prev);
				if (hitT < 0.0 || tc < hitT) {
					hitT = tc;
				}
			}
		}
		prevT = t;
		prev = cur;
	}
	if (hitT < 0.0) {
		return vec4(0.0);
	}

	vec3 p = o + d * hitT;
	vec3 n = gradient(p);
	if (length(n) == 0.0) {
		n = -d;
	}
	n = normalize(n);
	if (dot(n, d) > 0.0) {
		if (oneSided != 0) {
			return vec4(0.0, 0.0, 0.0, 1.0);
		}
		n = -n;
	}
	vec3 toLight = -normalize(lightDir);
	float ndl = max(dot(n, toLight), 0.0);
	vec3 h = normalize(toLight - d);
	float spec = ndl > 0.0 ? pow(max(dot(n, h), 0.0), ns) : 0.0;
	vec3 color = kd * (ambient + ndl) + ks * spec;
	return vec4(color * opacity, opacity);
}

float hash(vec2 p) {
	return fract(sin(dot(p, vec2(12.9898, 78.233))) * 43758.5453);
}

void main() {
	int n = max(samples, 1);
	vec4 sum = vec4(0.0);
	for (int s = 0; s < n; s++) {
		vec2 jitter = vec2(0.0);
		if (n > 1) {
			jitter = vec2(hash(gl_FragCoord.xy + float(s)), hash(gl_FragCoord.yx + float(s) * 7.0)) - vec2(0.5);
		}
		vec2 ndc = (gl_FragCoord.xy + jitter) / viewport * 2.0 - vec2(1.0);
		vec4 pn = invViewProj * vec4(ndc, -1.0, 1.0);
		vec3 d = normalize(pn.xyz / pn.w - eye);
		vec2 hit = intersectBox(eye, d);
		vec4 acc = vec4(0.0);
		if (hit.x <= hit.y) {
			acc = isosurface != 0 ? surface(eye, d, hit.x, hit.y) : integrate(eye, d, hit.x, hit.y);
		}
		sum += vec4(acc.rgb + background * (1.0 - acc.a), acc.a);
	}
	outputColor = sum / float(n);
}
` + "\x00"
