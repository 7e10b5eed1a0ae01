package render

// The quad covers clip space; texture coordinates are derived from the
// position and flipped so row 0 of the frame lands at the top.
const quadVertexShader = `#version 120
attribute vec2 a_position;
varying vec2 v_texCoord;

void main() {
	vec2 t = a_position * 0.5 + 0.5;
	v_texCoord = vec2(t.x, 1.0 - t.y);
	gl_Position = vec4(a_position, 0.0, 1.0);
}
`

// u_selectionRect is x, y, width, height normalized to the frame, origin top-left.
const quadFragmentShader = `#version 120
uniform sampler2D u_screenshot;
uniform vec4 u_selectionRect;
uniform float u_dimAmount;
uniform int u_hasSelection;
varying vec2 v_texCoord;

void main() {
	vec4 color = texture2D(u_screenshot, v_texCoord);
	bool inside = u_hasSelection != 0 &&
		v_texCoord.x >= u_selectionRect.x &&
		v_texCoord.x <= u_selectionRect.x + u_selectionRect.z &&
		v_texCoord.y >= u_selectionRect.y &&
		v_texCoord.y <= u_selectionRect.y + u_selectionRect.w;
	if (!inside) {
		color.rgb *= u_dimAmount;
	}
	gl_FragColor = color;
}
`

const borderVertexShader = `#version 120
attribute vec2 a_position;

void main() {
	gl_Position = vec4(a_position, 0.0, 1.0);
}
`

const borderFragmentShader = `#version 120
uniform vec4 u_borderColor;

void main() {
	gl_FragColor = u_borderColor;
}
`

var quadVertices = []float32{
	-1, -1,
	1, -1,
	-1, 1,
	1, 1,
}
