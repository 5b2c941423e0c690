// Package renderer draws the viewer's model with OpenGL.
package renderer

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/instructmesh/internal/engine/renderer/shaders"
	"github.com/Faultbox/instructmesh/internal/engine/scene"
	"github.com/Faultbox/instructmesh/internal/engine/shader"
	"github.com/Faultbox/instructmesh/internal/logger"
	"github.com/Faultbox/instructmesh/pkg/math"
)

// Vertex attribute locations shared with mesh.vert.
const (
	attribPosition = 0
	attribTexCoord = 1
	attribColor    = 2
)

// Config holds renderer configuration.
type Config struct {
	Width  int
	Height int
	VSync  bool
}

// Renderer handles all OpenGL rendering.
type Renderer struct {
	config  Config
	program *shader.Program
	meshes  *meshCache

	lightDir [3]float32
	ambient  [3]float32

	log *zap.Logger
}

// New creates a new renderer.
// IMPORTANT: Must be called AFTER OpenGL context is created!
func New(cfg Config) (*Renderer, error) {
	r := &Renderer{
		config:   cfg,
		meshes:   newMeshCache(),
		lightDir: [3]float32{-0.4, -1, -0.6},
		ambient:  [3]float32{0.35, 0.35, 0.35},
		log:      logger.Named("renderer"),
	}

	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	r.log.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	gl.ClearColor(0.1, 0.1, 0.15, 1.0) // Dark blue-gray background

	var err error
	r.program, err = shader.NewProgram(shaders.MeshVertexShader, shaders.MeshFragmentShader)
	if err != nil {
		return nil, fmt.Errorf("mesh shader: %w", err)
	}

	r.Resize(cfg.Width, cfg.Height)
	return r, nil
}

// Close cleans up renderer resources.
func (r *Renderer) Close() {
	r.log.Info("closing renderer")
	r.meshes.releaseAll(deleteGPUMesh, deleteTexture)
	r.program.Delete()
}

// Resize handles window resize.
func (r *Renderer) Resize(width, height int) {
	r.config.Width = width
	r.config.Height = height
	gl.Viewport(0, 0, int32(width), int32(height))
	r.log.Debug("renderer resized", zap.Int("width", width), zap.Int("height", height))
}

// Begin starts a new frame.
func (r *Renderer) Begin() {
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
}

// End finishes the current frame.
func (r *Renderer) End() {}

// ReadPixels returns the back buffer as bottom-up RGBA rows. Call it after
// drawing and before swapping buffers.
func (r *Renderer) ReadPixels() (pixels []byte, width, height int) {
	width, height = r.config.Width, r.config.Height
	pixels = make([]byte, width*height*4)
	if len(pixels) == 0 {
		return pixels, width, height
	}
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(width), int32(height), gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&pixels[0]))
	return pixels, width, height
}

// DrawModel draws every mesh of model. Color buffers that changed since the
// previous frame are re-uploaded first; textures are uploaded on first use.
func (r *Renderer) DrawModel(model *scene.Model, viewProj math.Mat4) {
	if model == nil {
		return
	}

	r.program.Use()
	gl.Uniform3f(r.program.Uniform("uLightDir"), r.lightDir[0], r.lightDir[1], r.lightDir[2])
	gl.Uniform3f(r.program.Uniform("uAmbient"), r.ambient[0], r.ambient[1], r.ambient[2])
	gl.ActiveTexture(gl.TEXTURE0)
	gl.Uniform1i(r.program.Uniform("uTexture"), 0)

	for _, mi := range model.Meshes() {
		mesh := mi.Mesh()
		if mesh.VertexCount() == 0 {
			continue
		}
		gm := r.meshes.get(mesh, uploadGPUMesh)
		if gm.colorsStale(mesh) {
			uploadColors(gm, mesh)
		}

		mvp := viewProj.Mul(mi.World)
		gl.UniformMatrix4fv(r.program.Uniform("uMVP"), 1, false, &mvp[0])
		gl.UniformMatrix4fv(r.program.Uniform("uModel"), 1, false, &mi.World[0])
		r.bindMaterial(mesh)

		gl.BindVertexArray(gm.vao)
		if gm.ebo != 0 {
			gl.DrawElements(gl.TRIANGLES, gm.count, gl.UNSIGNED_INT, nil)
		} else {
			gl.DrawArrays(gl.TRIANGLES, 0, gm.count)
		}
	}
	gl.BindVertexArray(0)
}

// Release frees the GPU resources of model's meshes and textures.
func (r *Renderer) Release(model *scene.Model) {
	for _, mi := range model.Meshes() {
		r.meshes.release(mi.Mesh(), deleteGPUMesh)
	}
	for _, mat := range model.Materials() {
		if mat.Map != nil {
			r.meshes.untrack(mat.Map, deleteTexture)
		}
	}
}

func (r *Renderer) bindMaterial(mesh *scene.Mesh) {
	mat := mesh.Material
	if mat == nil {
		mat = scene.NewMaterial("")
	}
	gl.Uniform4f(r.program.Uniform("uBaseColor"), mat.BaseColor[0], mat.BaseColor[1], mat.BaseColor[2], mat.BaseColor[3])

	useColors := int32(0)
	if mat.VertexColors && mesh.HasColors() {
		useColors = 1
	}
	gl.Uniform1i(r.program.Uniform("uUseVertexColors"), useColors)

	useTexture := int32(0)
	if mat.Map != nil && len(mesh.UVs) == mesh.VertexCount() {
		if mat.Map.GPUHandle == 0 {
			uploadTexture(mat.Map)
			r.meshes.track(mat.Map)
		}
		gl.BindTexture(gl.TEXTURE_2D, mat.Map.GPUHandle)
		useTexture = 1
	} else {
		gl.BindTexture(gl.TEXTURE_2D, 0)
	}
	gl.Uniform1i(r.program.Uniform("uUseTexture"), useTexture)
}

func uploadGPUMesh(mesh *scene.Mesh) *gpuMesh {
	gm := &gpuMesh{}
	gl.GenVertexArrays(1, &gm.vao)
	gl.BindVertexArray(gm.vao)

	// Vec3 is three packed float32s.
	gl.GenBuffers(1, &gm.positions)
	gl.BindBuffer(gl.ARRAY_BUFFER, gm.positions)
	gl.BufferData(gl.ARRAY_BUFFER, len(mesh.Positions)*12, unsafe.Pointer(&mesh.Positions[0]), gl.STATIC_DRAW)
	gl.VertexAttribPointerWithOffset(attribPosition, 3, gl.FLOAT, false, 12, 0)
	gl.EnableVertexAttribArray(attribPosition)

	if len(mesh.UVs) == mesh.VertexCount() {
		gl.GenBuffers(1, &gm.uvs)
		gl.BindBuffer(gl.ARRAY_BUFFER, gm.uvs)
		gl.BufferData(gl.ARRAY_BUFFER, len(mesh.UVs)*8, unsafe.Pointer(&mesh.UVs[0]), gl.STATIC_DRAW)
		gl.VertexAttribPointerWithOffset(attribTexCoord, 2, gl.FLOAT, false, 8, 0)
		gl.EnableVertexAttribArray(attribTexCoord)
	}

	gl.GenBuffers(1, &gm.colors)

	if len(mesh.Indices) > 0 {
		gl.GenBuffers(1, &gm.ebo)
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, gm.ebo)
		gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(mesh.Indices)*4, unsafe.Pointer(&mesh.Indices[0]), gl.STATIC_DRAW)
		gm.count = int32(len(mesh.Indices))
	} else {
		gm.count = int32(len(mesh.Positions))
	}

	gl.BindVertexArray(0)
	return gm
}

// uploadColors replaces the color attribute, or falls back to constant white
// when the mesh has no color buffer.
func uploadColors(gm *gpuMesh, mesh *scene.Mesh) {
	gl.BindVertexArray(gm.vao)
	if len(mesh.Colors) == 3*mesh.VertexCount() {
		gl.BindBuffer(gl.ARRAY_BUFFER, gm.colors)
		gl.BufferData(gl.ARRAY_BUFFER, len(mesh.Colors)*4, unsafe.Pointer(&mesh.Colors[0]), gl.DYNAMIC_DRAW)
		gl.VertexAttribPointerWithOffset(attribColor, 3, gl.FLOAT, false, 12, 0)
		gl.EnableVertexAttribArray(attribColor)
	} else {
		gl.DisableVertexAttribArray(attribColor)
		gl.VertexAttrib3f(attribColor, 1, 1, 1)
	}
	gl.BindVertexArray(0)
}

func deleteGPUMesh(gm *gpuMesh) {
	if gm.vao != 0 {
		gl.DeleteVertexArrays(1, &gm.vao)
	}
	for _, buf := range []uint32{gm.positions, gm.uvs, gm.colors, gm.ebo} {
		if buf != 0 {
			gl.DeleteBuffers(1, &buf)
		}
	}
}

func uploadTexture(tex *scene.Texture) {
	if len(tex.Pix) == 0 {
		return
	}
	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, int32(tex.Width), int32(tex.Height), 0, gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&tex.Pix[0]))
	gl.GenerateMipmap(gl.TEXTURE_2D)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)
	tex.GPUHandle = id
}

func deleteTexture(tex *scene.Texture) {
	if tex.GPUHandle != 0 {
		gl.DeleteTextures(1, &tex.GPUHandle)
		tex.GPUHandle = 0
	}
}
