package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// TemplateType names a scaffold for a new server entry file.
type TemplateType string

const (
	TypePython     TemplateType = "python"
	TypePy         TemplateType = "py"
	TypeNode       TemplateType = "node"
	TypeJS         TemplateType = "js"
	TypePythonHTTP TemplateType = "python-http"
	TypeNodeHTTP   TemplateType = "node-http"
)

// Runtime kinds a generated file runs under.
const (
	KindPython = "python"
	KindNode   = "node"
)

// ServerFile is a generated entry file.
type ServerFile struct {
	Name     string `json:"name"`
	Kind     string `json:"type"`
	Ext      string `json:"ext"`
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

// Generator provides template generation functionality
type Generator struct{}

// NewGenerator creates a new template generator
func NewGenerator() *Generator {
	return &Generator{}
}

var extPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Generate creates the entry file for a server called name. Unknown types
// are treated as a file extension and get a node-run placeholder.
func (g *Generator) Generate(templateType TemplateType, name string) (*ServerFile, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("template name is empty")
	}
	t := TemplateType(strings.ToLower(strings.TrimSpace(string(templateType))))
	switch t {
	case TypePython, TypePy:
		return g.file(name, KindPython, ".py", pythonDefault), nil
	case TypeNode, TypeJS:
		return g.file(name, KindNode, ".js", nodeDefault), nil
	case TypePythonHTTP:
		return g.file(name, KindPython, ".py", pythonHTTP), nil
	case TypeNodeHTTP:
		return g.file(name, KindNode, ".js", nodeHTTP), nil
	}
	ext := strings.TrimPrefix(string(t), ".")
	if !extPattern.MatchString(ext) {
		return nil, fmt.Errorf("unknown template type: %q (supported: %s, or a file extension)",
			templateType, strings.Join(g.GetSupportedTypes(), ", "))
	}
	return g.file(name, KindNode, "."+ext, fmt.Sprintf(customDefault, "."+ext)), nil
}

// GenerateJSON creates a JSON representation of the generated file
func (g *Generator) GenerateJSON(templateType TemplateType, name string) ([]byte, error) {
	f, err := g.Generate(templateType, name)
	if err != nil {
		return nil, err
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	return b, nil
}

// GetSupportedTypes returns the named template types
func (g *Generator) GetSupportedTypes() []string {
	return []string{
		string(TypePython),
		string(TypeNode),
		string(TypePythonHTTP),
		string(TypeNodeHTTP),
	}
}

func (g *Generator) file(name, kind, ext, content string) *ServerFile {
	return &ServerFile{
		Name:     name,
		Kind:     kind,
		Ext:      ext,
		FileName: name + ext,
		Content:  content,
	}
}

const pythonDefault = `# Default Python server
print('Server running')
while True:
    pass
`

const nodeDefault = `// Default Node.js server
console.log('Server running');
setInterval(()=>{},1000);
`

const customDefault = `// Custom server file: %s
console.log('Server running');
`

const pythonHTTP = `# Python development HTTP server
import http.server
import os
import socketserver

PORT = int(os.environ.get("PORT", "8000"))

with socketserver.TCPServer(("", PORT), http.server.SimpleHTTPRequestHandler) as httpd:
    print(f"Serving on port {PORT}")
    httpd.serve_forever()
`

const nodeHTTP = `// Node.js development HTTP server
const http = require('http');
const port = Number(process.env.PORT || 3000);

http.createServer((req, res) => {
  console.log(req.method + ' ' + req.url);
  res.end('ok\n');
}).listen(port, () => console.log('Serving on port ' + port));
`
