package chunker

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	clang "github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// structuralStrategy extracts named definitions as chunks using a
// grammar-driven parser, one per supported language.
type structuralStrategy struct {
	cfg Config
}

func newStructuralStrategy(cfg Config) *structuralStrategy {
	return &structuralStrategy{cfg: cfg}
}

func languageFor(lang string) (*sitter.Language, error) {
	switch lang {
	case "go":
		return golang.GetLanguage(), nil
	case "python":
		return python.GetLanguage(), nil
	case "javascript":
		return javascript.GetLanguage(), nil
	case "typescript":
		return typescript.GetLanguage(), nil
	case "rust":
		return rust.GetLanguage(), nil
	case "ruby":
		return ruby.GetLanguage(), nil
	case "java":
		return java.GetLanguage(), nil
	case "c":
		return clang.GetLanguage(), nil
	case "cpp":
		return cpp.GetLanguage(), nil
	case "csharp":
		return csharp.GetLanguage(), nil
	case "bash":
		return bash.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("chunker: unsupported structural language %q", lang)
	}
}

// interestingNodeTypes maps a language's AST node types to the chunk
// type they represent. Only definitions named in spec.md §4.3
// (functions, classes/structs, methods, interfaces, type aliases,
// enums, traits, and named arrow functions for TS/JS) are included.
func interestingNodeTypes(lang string) map[string]string {
	switch lang {
	case "go":
		return map[string]string{
			"function_declaration": "function",
			"method_declaration":   "method",
			"type_declaration":     "type",
		}
	case "python":
		return map[string]string{
			"function_definition": "function",
			"class_definition":    "class",
		}
	case "javascript", "typescript":
		return map[string]string{
			"function_declaration":   "function",
			"method_definition":      "method",
			"class_declaration":      "class",
			"interface_declaration":  "interface",
			"type_alias_declaration": "type",
			"enum_declaration":       "enum",
		}
	case "rust":
		return map[string]string{
			"function_item": "function",
			"impl_item":     "impl",
			"struct_item":   "struct",
			"enum_item":     "enum",
			"trait_item":    "trait",
			"mod_item":      "module",
		}
	case "java":
		return map[string]string{
			"method_declaration":      "method",
			"constructor_declaration": "constructor",
			"class_declaration":       "class",
			"interface_declaration":   "interface",
			"enum_declaration":        "enum",
		}
	case "ruby":
		return map[string]string{
			"method":           "method",
			"singleton_method": "method",
			"class":            "class",
			"module":           "module",
		}
	case "c", "cpp":
		return map[string]string{
			"function_definition":  "function",
			"struct_specifier":     "struct",
			"class_specifier":      "class",
			"enum_specifier":       "enum",
			"namespace_definition": "namespace",
		}
	case "csharp":
		return map[string]string{
			"method_declaration":      "method",
			"constructor_declaration": "constructor",
			"class_declaration":       "class",
			"interface_declaration":   "interface",
			"struct_declaration":      "struct",
			"enum_declaration":        "enum",
		}
	default:
		return map[string]string{}
	}
}

// isNamedArrowDeclaration additionally treats a TS/JS "const f = (...) =>"
// style lexical declaration whose single declarator initializer is an
// arrow function as its own chunk, per spec.md §4.3's "arrow functions
// bound to a name" requirement.
func isNamedArrowDeclaration(node *sitter.Node, lang string) bool {
	if lang != "javascript" && lang != "typescript" {
		return false
	}
	if node.Type() != "lexical_declaration" && node.Type() != "variable_declaration" {
		return false
	}
	if node.NamedChildCount() != 1 {
		return false
	}
	declarator := node.NamedChild(0)
	if declarator.Type() != "variable_declarator" {
		return false
	}
	value := declarator.ChildByFieldName("value")
	return value != nil && (value.Type() == "arrow_function" || value.Type() == "function")
}

// chunk parses content with lang's grammar and extracts chunk
// candidates. Parse failure or a query yielding nothing returns
// (nil, err)/(nil, nil) respectively; the caller falls back to the
// line-window strategy in either case.
func (s *structuralStrategy) chunk(lang string, content []byte) ([]ChunkCandidate, error) {
	tsLang, err := languageFor(lang)
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	parser.SetLanguage(tsLang)
	defer parser.Close()

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("chunker: parsing %s source: %w", lang, err)
	}
	defer tree.Close()

	var raw []ChunkCandidate
	s.walk(tree.RootNode(), content, lang, &raw)
	return s.postProcess(raw, content), nil
}

// walk traverses the AST collecting interesting nodes as chunk
// candidates. It also recurses into a matched node's children: a
// class and its methods each become their own chunk, with tolerated
// line-range overlap between the enclosing and nested chunks.
func (s *structuralStrategy) walk(node *sitter.Node, content []byte, lang string, out *[]ChunkCandidate) {
	types := interestingNodeTypes(lang)

	if _, ok := types[node.Type()]; ok || isNamedArrowDeclaration(node, lang) {
		symbolNode := node
		if isNamedArrowDeclaration(node, lang) {
			symbolNode = node.NamedChild(0)
		}
		*out = append(*out, ChunkCandidate{
			StartLine: int(node.StartPoint().Row) + 1,
			EndLine:   int(node.EndPoint().Row) + 1,
			Symbol:    extractSymbol(symbolNode, content),
			Content:   string(content[node.StartByte():node.EndByte()]),
		})
		// Nested definitions are still emitted separately: recurse
		// into this node's children so e.g. a class's methods also
		// become their own chunks, tolerating the overlap with the
		// enclosing chunk's line range.
		for i := 0; i < int(node.ChildCount()); i++ {
			s.walk(node.Child(i), content, lang, out)
		}
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		s.walk(node.Child(i), content, lang, out)
	}
}

// extractSymbol finds the declared name of a definition node, trying
// the grammar's own "name" field first, then falling back to the
// first identifier-like child.
func extractSymbol(node *sitter.Node, content []byte) string {
	if name := node.ChildByFieldName("name"); name != nil {
		return name.Content(content)
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier", "type_identifier", "property_identifier", "field_identifier":
			return child.Content(content)
		}
	}
	// Named arrow/function declarations: the name lives on the
	// variable_declarator, one level above the value this node is.
	if node.Type() == "variable_declarator" {
		if name := node.ChildByFieldName("name"); name != nil {
			return name.Content(content)
		}
	}
	return ""
}

// postProcess drops chunks below MinChunkLines and splits any chunk
// exceeding MaxChunkLines using the same sliding-window logic as the
// fallback strategy, preserving the chunk's symbol across the split
// pieces.
func (s *structuralStrategy) postProcess(chunks []ChunkCandidate, content []byte) []ChunkCandidate {
	if len(chunks) == 0 {
		return chunks
	}
	lines := splitLines(content)

	result := make([]ChunkCandidate, 0, len(chunks))
	for _, ch := range chunks {
		size := ch.EndLine - ch.StartLine + 1
		switch {
		case size > s.cfg.MaxChunkLines:
			result = append(result, splitOversized(ch, lines, s.cfg)...)
		case size >= s.cfg.MinChunkLines:
			result = append(result, ch)
		}
	}
	return result
}
