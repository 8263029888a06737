// Package gpu draws a replica's mirror with OpenGL 4.1. Drawables are
// uploaded only when their revision moved since the last upload.
package gpu

import (
	"fmt"
	"image"
	"image/draw"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/hsync/internal/material"
	"github.com/Faultbox/hsync/internal/mirror"
	hmath "github.com/Faultbox/hsync/pkg/math"
)

type gpuMesh struct {
	vao, vbo, ebo uint32
	rev           uint64
	draws         []drawCall
	seen          bool
}

type gpuTexture struct {
	id   uint32
	src  image.Image
	seen bool
}

// Renderer owns the GL objects mirroring a scene.
// IMPORTANT: create it after the GL context, and use it from that thread only.
type Renderer struct {
	prog     *program
	meshes   map[*mirror.Drawable]*gpuMesh
	textures map[material.Key]*gpuTexture
	log      *zap.Logger

	// Background is the clear color.
	Background [4]float32
	// LightDir is the world-space direction light travels in.
	LightDir hmath.Vec3
}

// New initializes GL and compiles the scene shader.
func New(log *zap.Logger) (*Renderer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	log.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	prog, err := newProgram()
	if err != nil {
		return nil, fmt.Errorf("failed to create shader program: %w", err)
	}
	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.PROGRAM_POINT_SIZE)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)

	return &Renderer{
		prog:       prog,
		meshes:     make(map[*mirror.Drawable]*gpuMesh),
		textures:   make(map[material.Key]*gpuTexture),
		log:        log,
		Background: [4]float32{0.1, 0.1, 0.15, 1},
		LightDir:   hmath.Vec3{X: -0.4, Y: -1, Z: -0.3}.Normalize(),
	}, nil
}

// Sync uploads drawables and textures that changed and frees the GL objects
// of everything that left the scene. It returns the number of uploads.
func (r *Renderer) Sync(scene *mirror.Scene, store *material.Store) int {
	uploads := 0
	for _, m := range r.meshes {
		m.seen = false
	}
	scene.Each(func(g *mirror.Geometry) {
		g.Walk(func(_, _, _ int, d *mirror.Drawable) {
			m, ok := r.meshes[d]
			if !ok {
				m = &gpuMesh{rev: ^uint64(0)}
				r.meshes[d] = m
			}
			m.seen = true
			if m.rev != d.Revision() {
				r.upload(m, buildMesh(d))
				m.rev = d.Revision()
				uploads++
			}
		})
	})
	for d, m := range r.meshes {
		if !m.seen {
			r.free(m)
			delete(r.meshes, d)
		}
	}

	for _, t := range r.textures {
		t.seen = false
	}
	if store != nil {
		for _, k := range store.Keys() {
			mat, _ := store.Get(k.Asset, k.ID)
			if mat == nil || mat.Image == nil {
				continue
			}
			t, ok := r.textures[k]
			if !ok {
				t = &gpuTexture{}
				r.textures[k] = t
			}
			t.seen = true
			if t.src != mat.Image {
				r.uploadTexture(t, mat.Image)
				uploads++
			}
		}
	}
	for k, t := range r.textures {
		if !t.seen {
			gl.DeleteTextures(1, &t.id)
			delete(r.textures, k)
		}
	}
	if uploads > 0 {
		r.log.Debug("uploaded", zap.Int("objects", uploads), zap.Int("meshes", len(r.meshes)), zap.Int("textures", len(r.textures)))
	}
	return uploads
}

func (r *Renderer) upload(m *gpuMesh, data meshData) {
	m.draws = data.draws
	if len(data.vertices) == 0 || len(data.indices) == 0 {
		m.draws = nil
		return
	}
	if m.vao == 0 {
		gl.GenVertexArrays(1, &m.vao)
		gl.GenBuffers(1, &m.vbo)
		gl.GenBuffers(1, &m.ebo)
	}
	gl.BindVertexArray(m.vao)

	gl.BindBuffer(gl.ARRAY_BUFFER, m.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(data.vertices)*4, unsafe.Pointer(&data.vertices[0]), gl.DYNAMIC_DRAW)
	stride := int32(Stride * 4)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, stride, 0)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(1, 3, gl.FLOAT, false, stride, 3*4)
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointerWithOffset(2, 4, gl.FLOAT, false, stride, 6*4)
	gl.EnableVertexAttribArray(2)
	gl.VertexAttribPointerWithOffset(3, 2, gl.FLOAT, false, stride, 10*4)
	gl.EnableVertexAttribArray(3)

	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, m.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(data.indices)*4, unsafe.Pointer(&data.indices[0]), gl.DYNAMIC_DRAW)
	gl.BindVertexArray(0)
}

func (r *Renderer) free(m *gpuMesh) {
	if m.vao == 0 {
		return
	}
	gl.DeleteVertexArrays(1, &m.vao)
	gl.DeleteBuffers(1, &m.vbo)
	gl.DeleteBuffers(1, &m.ebo)
}

func (r *Renderer) uploadTexture(t *gpuTexture, img image.Image) {
	b := img.Bounds()
	rgba := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	if t.id == 0 {
		gl.GenTextures(1, &t.id)
	}
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, int32(b.Dx()), int32(b.Dy()), 0, gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&rgba.Pix[0]))
	gl.GenerateMipmap(gl.TEXTURE_2D)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)
	t.src = img
}

type item struct {
	model hmath.Mat4
	mesh  *gpuMesh
	mat   *material.Material
	tex   *gpuTexture
}

// Draw clears the viewport and draws the scene: opaque drawables first,
// then transparent ones without depth writes.
func (r *Renderer) Draw(scene *mirror.Scene, store *material.Store, cam *Camera, width, height int) {
	gl.Viewport(0, 0, int32(width), int32(height))
	gl.ClearColor(r.Background[0], r.Background[1], r.Background[2], r.Background[3])
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	var opaque, transparent []item
	scene.Each(func(g *mirror.Geometry) {
		for _, o := range g.Objects {
			model := o.Transform.Matrix()
			for _, gd := range o.Geodes {
				for _, d := range gd.Drawables {
					m := r.meshes[d]
					if m == nil || len(m.draws) == 0 {
						continue
					}
					it := item{model: model, mesh: m}
					if d.Material != mirror.NoMaterial && store != nil {
						it.mat, _ = store.Get(g.Name, d.Material)
						it.tex = r.textures[material.Key{Asset: g.Name, ID: d.Material}]
					}
					if d.Transparent || (it.mat != nil && it.mat.Transparent()) {
						transparent = append(transparent, it)
					} else {
						opaque = append(opaque, it)
					}
				}
			}
		}
	})

	gl.UseProgram(r.prog.id)
	vp := cam.Projection(float32(width) / float32(max(height, 1))).Mul(cam.View())
	gl.UniformMatrix4fv(r.prog.viewProj, 1, false, vp.Ptr())
	gl.Uniform3f(r.prog.lightDir, r.LightDir.X, r.LightDir.Y, r.LightDir.Z)
	gl.Uniform1i(r.prog.texture, 0)

	for _, it := range opaque {
		r.drawItem(it)
	}
	if len(transparent) > 0 {
		gl.Enable(gl.BLEND)
		gl.DepthMask(false)
		for _, it := range transparent {
			r.drawItem(it)
		}
		gl.DepthMask(true)
		gl.Disable(gl.BLEND)
	}
	gl.BindVertexArray(0)
}

func (r *Renderer) drawItem(it item) {
	gl.UniformMatrix4fv(r.prog.model, 1, false, it.model.Ptr())
	base := [4]float32{1, 1, 1, 1}
	if it.mat != nil {
		base = [4]float32{
			it.mat.Float("ogl_diff", 0, 1),
			it.mat.Float("ogl_diff", 1, 1),
			it.mat.Float("ogl_diff", 2, 1),
			it.mat.Float("ogl_alpha", 0, 1),
		}
	}
	gl.Uniform4f(r.prog.baseColor, base[0], base[1], base[2], base[3])
	if it.tex != nil {
		gl.ActiveTexture(gl.TEXTURE0)
		gl.BindTexture(gl.TEXTURE_2D, it.tex.id)
		gl.Uniform1i(r.prog.textured, 1)
	} else {
		gl.Uniform1i(r.prog.textured, 0)
	}

	gl.BindVertexArray(it.mesh.vao)
	for _, d := range it.mesh.draws {
		mode := uint32(gl.TRIANGLES)
		switch d.kind {
		case drawLines:
			mode = gl.LINE_STRIP
		case drawPoints:
			mode = gl.POINTS
		}
		gl.DrawElementsWithOffset(mode, int32(d.count), gl.UNSIGNED_INT, uintptr(d.first*4))
	}
}

// Close frees every GL object.
func (r *Renderer) Close() {
	r.log.Info("closing renderer")
	for d, m := range r.meshes {
		r.free(m)
		delete(r.meshes, d)
	}
	for k, t := range r.textures {
		gl.DeleteTextures(1, &t.id)
		delete(r.textures, k)
	}
	gl.DeleteProgram(r.prog.id)
}
