// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/tombee/mcporch/internal/mcp"
)

// Palette. lipgloss drops colour on its own when output is not a terminal.
var (
	green  = lipgloss.Color("42")
	orange = lipgloss.Color("214")
	red    = lipgloss.Color("196")
	blue   = lipgloss.Color("39")
	gray   = lipgloss.Color("245")
)

var (
	Muted  = lipgloss.NewStyle().Foreground(gray)
	Bold   = lipgloss.NewStyle().Bold(true)
	Header = Bold.Foreground(blue)

	// Block frames multi-line output such as a task summary.
	Block = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
)

const (
	SymbolInfo  = "•"
	SymbolArrow = "→"
)

// marker is a coloured status symbol placed in front of a message.
type marker struct {
	style  lipgloss.Style
	symbol string
}

func (m marker) render(msg string) string {
	return m.style.Render(m.symbol) + " " + msg
}

var (
	okMarker    = marker{lipgloss.NewStyle().Foreground(green), "✓"}
	warnMarker  = marker{lipgloss.NewStyle().Foreground(orange), "⚠"}
	errorMarker = marker{lipgloss.NewStyle().Foreground(red), "✗"}
	infoMarker  = marker{lipgloss.NewStyle().Foreground(blue), SymbolInfo}
)

func RenderOK(msg string) string    { return okMarker.render(msg) }
func RenderWarn(msg string) string  { return warnMarker.render(msg) }
func RenderError(msg string) string { return errorMarker.render(msg) }
func RenderInfo(msg string) string  { return infoMarker.render(msg) }

// RenderLabel dims the key of a key: value line.
func RenderLabel(label string) string {
	return Muted.Render(label)
}

// RenderProtocol colours a protocol name; unknown is shown as a warning.
func RenderProtocol(p mcp.Protocol) string {
	if p == mcp.ProtocolUnknown || p == "" {
		return warnMarker.style.Render(string(mcp.ProtocolUnknown))
	}
	return infoMarker.style.Render(string(p))
}
