// Package webgpu implements engine.Device by ray marching the volume in a
// WGSL fragment shader.
package webgpu

import (
	"fmt"
	"image"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gmlewis/pbnj/engine"
	"github.com/go-gl/mathgl/mgl32"
)

// maxIsovalues is the number of isovalues the shader evaluates.
const maxIsovalues = 4

// uniformFloats is the size of the Uniforms struct in float32s.
const uniformFloats = 56

// Device is a rendering backend using WebGPU.
type Device struct {
	engine.Base

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	pipeline        *wgpu.RenderPipeline
	bindGroupLayout *wgpu.BindGroupLayout
	vertexBuffer    *wgpu.Buffer
	uniformBuffer   *wgpu.Buffer

	// Resources of the most recently rendered volume.
	volume      *engine.Volume
	voxelBuffer *wgpu.Buffer
	tableBuffer *wgpu.Buffer
	voxelBytes  uint64
	tableBytes  uint64
	bindGroup   *wgpu.BindGroup

	// Resources of the most recent framebuffer size.
	width         int
	height        int
	bytesPerRow   uint32
	readBuffer    *wgpu.Buffer
	targetTexture *wgpu.Texture
	targetView    *wgpu.TextureView
}

// Device implements the engine.Device interface.
var _ engine.Device = &Device{}

// New acquires a GPU adapter and builds the ray marching pipeline.
func New() (*Device, error) {
	d := &Device{}
	d.instance = wgpu.CreateInstance(nil)
	if d.instance == nil {
		return nil, fmt.Errorf("failed to create wgpu instance")
	}

	var err error
	d.adapter, err = d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to request wgpu adapter: %w", err)
	}

	d.device, err = d.adapter.RequestDevice(nil)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to request wgpu device: %w", err)
	}
	d.queue = d.device.GetQueue()

	if err := d.createPipeline(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) Name() string { return "webgpu" }

func (d *Device) createPipeline() error {
	shaderModule, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: wgslShader,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create shader module: %w", err)
	}
	defer shaderModule.Release()

	d.vertexBuffer, err = d.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Vertex Buffer",
		Contents: wgpu.ToBytes(quadVertices),
		Usage:    wgpu.BufferUsageVertex,
	})
	if err != nil {
		return fmt.Errorf("failed to create vertex buffer: %w", err)
	}

	d.uniformBuffer, err = d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Uniform Buffer",
		Size:  uniformFloats * 4,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("failed to create uniform buffer: %w", err)
	}

	d.bindGroupLayout, err = d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageFragment,
				Buffer: wgpu.BufferBindingLayout{
					Type: wgpu.BufferBindingTypeUniform,
				},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageFragment,
				Buffer: wgpu.BufferBindingLayout{
					Type: wgpu.BufferBindingTypeReadOnlyStorage,
				},
			},
			{
				Binding:    2,
				Visibility: wgpu.ShaderStageFragment,
				Buffer: wgpu.BufferBindingLayout{
					Type: wgpu.BufferBindingTypeReadOnlyStorage,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create bind group layout: %w", err)
	}

	pipelineLayout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{d.bindGroupLayout},
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline layout: %w", err)
	}
	defer pipelineLayout.Release()

	d.pipeline, err = d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     shaderModule,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{
				{
					ArrayStride: 2 * 4,
					Attributes: []wgpu.VertexAttribute{
						{
							Format:         wgpu.VertexFormatFloat32x2,
							Offset:         0,
							ShaderLocation: 0,
						},
					},
				},
			},
		},
		Fragment: &wgpu.FragmentState{
			Module:     shaderModule,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{
					Format:    wgpu.TextureFormatRGBA8Unorm,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create render pipeline: %w", err)
	}
	return nil
}

// prepareVolume uploads v and its transfer function unless they are already
// resident.
func (d *Device) prepareVolume(v *engine.Volume) error {
	if d.volume == v && d.bindGroup != nil {
		return nil
	}
	d.releaseVolume()

	voxels := engine.Flatten(v.Field)
	table := make([]float32, 0, 4*len(v.Table))
	for _, c := range v.Table {
		table = append(table, c[0], c[1], c[2], c[3])
	}

	var err error
	d.voxelBuffer, err = d.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Voxel Buffer",
		Contents: wgpu.ToBytes(voxels),
		Usage:    wgpu.BufferUsageStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create voxel buffer: %w", err)
	}
	d.voxelBytes = uint64(len(voxels) * 4)

	d.tableBuffer, err = d.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Transfer Function Buffer",
		Contents: wgpu.ToBytes(table),
		Usage:    wgpu.BufferUsageStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create transfer function buffer: %w", err)
	}
	d.tableBytes = uint64(len(table) * 4)

	d.bindGroup, err = d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: d.bindGroupLayout,
		Entries: []wgpu.BindGroupEntry{
			{
				Binding: 0,
				Buffer:  d.uniformBuffer,
				Size:    uniformFloats * 4,
			},
			{
				Binding: 1,
				Buffer:  d.voxelBuffer,
				Size:    d.voxelBytes,
			},
			{
				Binding: 2,
				Buffer:  d.tableBuffer,
				Size:    d.tableBytes,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create bind group: %w", err)
	}
	d.volume = v
	engine.Logger().Debug("webgpu: uploaded volume", "dims", v.Field.Dims(), "bytes", d.voxelBytes)
	return nil
}

// prepareTarget sizes the offscreen texture and read buffer.
func (d *Device) prepareTarget(width, height int) error {
	if d.targetTexture != nil && d.width == width && d.height == height {
		return nil
	}
	d.releaseTarget()
	d.width, d.height = width, height

	var err error
	d.targetTexture, err = d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "Target Texture",
		Size: wgpu.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("failed to create target texture: %w", err)
	}
	d.targetView, err = d.targetTexture.CreateView(nil)
	if err != nil {
		return fmt.Errorf("failed to create texture view: %w", err)
	}

	d.bytesPerRow = (uint32(width*4) + 255) &^ 255
	d.readBuffer, err = d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Read Buffer",
		Size:  uint64(d.bytesPerRow * uint32(height)),
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("failed to create read buffer: %w", err)
	}
	return nil
}

// RenderFrame renders one pass of r into fb.
func (d *Device) RenderFrame(fb *engine.FrameBuffer, r *engine.Renderer, channels engine.Channel) error {
	f, err := d.BeginFrame(fb, r)
	if err != nil {
		return err
	}
	u, v, err := buildUniforms(f)
	if err != nil {
		return err
	}
	if err := d.prepareVolume(v); err != nil {
		return err
	}
	if err := d.prepareTarget(fb.Width, fb.Height); err != nil {
		return err
	}
	d.queue.WriteBuffer(d.uniformBuffer, 0, wgpu.ToBytes(u))

	img, err := d.draw()
	if err != nil {
		return err
	}

	// Texture row 0 is the top of the image; framebuffer row 0 is the bottom.
	for y := 0; y < fb.Height; y++ {
		src := img.Pix[(fb.Height-1-y)*img.Stride:]
		for x := 0; x < fb.Width; x++ {
			p := src[4*x : 4*x+4]
			fb.SetSample(y*fb.Width+x, mgl32.Vec4{
				engine.FromByte(p[0]), engine.FromByte(p[1]), engine.FromByte(p[2]), engine.FromByte(p[3]),
			})
		}
	}
	d.EndFrame(f)
	return nil
}

func (d *Device) draw() (*image.RGBA, error) {
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}

	renderPass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       d.targetView,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 0},
			},
		},
	})
	renderPass.SetPipeline(d.pipeline)
	renderPass.SetBindGroup(0, d.bindGroup, nil)
	renderPass.SetVertexBuffer(0, d.vertexBuffer, 0, d.vertexBuffer.GetSize())
	renderPass.Draw(6, 1, 0, 0)
	if err := renderPass.End(); err != nil {
		renderPass.Release()
		return nil, err
	}
	renderPass.Release()

	encoder.CopyTextureToBuffer(
		d.targetTexture.AsImageCopy(),
		&wgpu.ImageCopyBuffer{
			Buffer: d.readBuffer,
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  d.bytesPerRow,
				RowsPerImage: uint32(d.height),
			},
		},
		&wgpu.Extent3D{
			Width:              uint32(d.width),
			Height:             uint32(d.height),
			DepthOrArrayLayers: 1,
		},
	)

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return nil, err
	}
	d.queue.Submit(commandBuffer)
	commandBuffer.Release()
	encoder.Release()

	size := uint64(d.bytesPerRow * uint32(d.height))
	done := make(chan struct{})
	var mapStatus wgpu.BufferMapAsyncStatus
	d.readBuffer.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		mapStatus = status
		close(done)
	})

	for mapped := false; !mapped; {
		d.device.Poll(false, nil)
		select {
		case <-done:
			mapped = true
		default:
		}
	}
	if mapStatus != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("failed to map read buffer: %v", mapStatus)
	}

	data := d.readBuffer.GetMappedRange(0, uint(size))
	rgba := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	for y := 0; y < d.height; y++ {
		srcStart := uint32(y) * d.bytesPerRow
		copy(rgba.Pix[y*rgba.Stride:y*rgba.Stride+d.width*4], data[srcStart:srcStart+uint32(d.width*4)])
	}
	d.readBuffer.Unmap()
	return rgba, nil
}

func (d *Device) releaseVolume() {
	if d.bindGroup != nil {
		d.bindGroup.Release()
		d.bindGroup = nil
	}
	if d.voxelBuffer != nil {
		d.voxelBuffer.Release()
		d.voxelBuffer = nil
	}
	if d.tableBuffer != nil {
		d.tableBuffer.Release()
		d.tableBuffer = nil
	}
	d.volume = nil
}

func (d *Device) releaseTarget() {
	if d.readBuffer != nil {
		d.readBuffer.Release()
		d.readBuffer = nil
	}
	if d.targetView != nil {
		d.targetView.Release()
		d.targetView = nil
	}
	if d.targetTexture != nil {
		d.targetTexture.Release()
		d.targetTexture = nil
	}
}

// Close releases every GPU resource held by the device.
func (d *Device) Close() error {
	if n := d.Stats().TotalLive(); n > 0 {
		engine.Logger().Warn("webgpu: device closed with live objects", "count", n)
	}
	d.releaseVolume()
	d.releaseTarget()
	if d.vertexBuffer != nil {
		d.vertexBuffer.Release()
		d.vertexBuffer = nil
	}
	if d.uniformBuffer != nil {
		d.uniformBuffer.Release()
		d.uniformBuffer = nil
	}
	if d.pipeline != nil {
		d.pipeline.Release()
		d.pipeline = nil
	}
	if d.bindGroupLayout != nil {
		d.bindGroupLayout.Release()
		d.bindGroupLayout = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
	return nil
}

var quadVertices = []float32{
	-1, -1, 1, -1, -1, 1,
	1, -1, 1, 1, -1, 1,
}
