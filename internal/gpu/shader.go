package gpu

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
)

const vertexSource = `#version 410 core
layout(location = 0) in vec3 aPosition;
layout(location = 1) in vec3 aNormal;
layout(location = 2) in vec4 aColor;
layout(location = 3) in vec2 aUV;

uniform mat4 uViewProj;
uniform mat4 uModel;

out vec3 vNormal;
out vec4 vColor;
out vec2 vUV;

void main() {
	vNormal = mat3(uModel) * aNormal;
	vColor = aColor;
	vUV = aUV;
	gl_PointSize = 3.0;
	gl_Position = uViewProj * uModel * vec4(aPosition, 1.0);
}
`

const fragmentSource = `#version 410 core
in vec3 vNormal;
in vec4 vColor;
in vec2 vUV;

uniform vec4 uBaseColor;
uniform bool uTextured;
uniform sampler2D uTexture;
uniform vec3 uLightDir;

out vec4 fragColor;

void main() {
	vec4 c = vColor * uBaseColor;
	if (uTextured) {
		c *= texture(uTexture, vUV);
	}
	float lit = 1.0;
	if (length(vNormal) > 0.0) {
		lit = 0.3 + 0.7 * max(dot(normalize(vNormal), -uLightDir), 0.0);
	}
	fragColor = vec4(c.rgb * lit, c.a);
}
`

// program is the linked scene shader and its uniform locations.
type program struct {
	id        uint32
	viewProj  int32
	model     int32
	baseColor int32
	textured  int32
	texture   int32
	lightDir  int32
}

func newProgram() (*program, error) {
	id, err := compileProgram(vertexSource, fragmentSource)
	if err != nil {
		return nil, err
	}
	return &program{
		id:        id,
		viewProj:  uniform(id, "uViewProj"),
		model:     uniform(id, "uModel"),
		baseColor: uniform(id, "uBaseColor"),
		textured:  uniform(id, "uTextured"),
		texture:   uniform(id, "uTexture"),
		lightDir:  uniform(id, "uLightDir"),
	}, nil
}

func compileProgram(vertexSrc, fragmentSrc string) (uint32, error) {
	vs, err := compileShader(vertexSrc, gl.VERTEX_SHADER, "vertex")
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(vs)
	fs, err := compileShader(fragmentSrc, gl.FRAGMENT_SHADER, "fragment")
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(fs)

	id := gl.CreateProgram()
	gl.AttachShader(id, vs)
	gl.AttachShader(id, fs)
	gl.LinkProgram(id)

	var status int32
	gl.GetProgramiv(id, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetProgramiv(id, gl.INFO_LOG_LENGTH, &n)
		msg := make([]byte, n+1)
		gl.GetProgramInfoLog(id, n, nil, &msg[0])
		gl.DeleteProgram(id)
		return 0, fmt.Errorf("link: %s", msg[:n])
	}
	return id, nil
}

func compileShader(source string, kind uint32, name string) (uint32, error) {
	sh := gl.CreateShader(kind)
	csrc, free := gl.Strs(source + "\x00")
	gl.ShaderSource(sh, 1, csrc, nil)
	free()
	gl.CompileShader(sh)

	var status int32
	gl.GetShaderiv(sh, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetShaderiv(sh, gl.INFO_LOG_LENGTH, &n)
		msg := make([]byte, n+1)
		gl.GetShaderInfoLog(sh, n, nil, &msg[0])
		gl.DeleteShader(sh)
		return 0, fmt.Errorf("%s shader: %s", name, msg[:n])
	}
	return sh, nil
}

func uniform(id uint32, name string) int32 {
	return gl.GetUniformLocation(id, gl.Str(name+"\x00"))
}
