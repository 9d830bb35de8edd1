package fileindex

import (
	"github.com/src-d/enry/v2"
)

// extensionToLanguage maps file extensions to languages for unambiguous
// cases, giving O(1) lookup and doubling as the extension allowlist: a file
// whose extension is absent here is skipped during the walk.
//
//nolint:gochecknoglobals // package-level lookup table.
var extensionToLanguage = map[string]string{
	".go": "Go",

	".py":  "Python",
	".pyw": "Python",
	".pyi": "Python",

	".js":  "JavaScript",
	".mjs": "JavaScript",
	".cjs": "JavaScript",
	".jsx": "JavaScript",

	".ts":  "TypeScript",
	".mts": "TypeScript",
	".cts": "TypeScript",
	".tsx": "TSX",

	".rs": "Rust",

	".java": "Java",

	".kt":  "Kotlin",
	".kts": "Kotlin",

	".c": "C",
	".h": ambiguousCLang,

	".cpp": "C++",
	".cc":  "C++",
	".cxx": "C++",
	".hpp": "C++",
	".hh":  "C++",

	".cs": "C#",

	".rb":   "Ruby",
	".rake": "Ruby",

	".php": "PHP",

	".sh":   "Shell",
	".bash": "Shell",
	".zsh":  "Shell",

	".swift": "Swift",

	".m":  ambiguousObjCLang,
	".mm": "Objective-C++",

	".dart": "Dart",

	".scala": "Scala",

	".json": "JSON",
	".yaml": "YAML",
	".yml":  "YAML",
	".toml": "TOML",
	".xml":  "XML",

	".html": "HTML",
	".htm":  "HTML",
	".css":  "CSS",
	".scss": "SCSS",
	".sass": "Sass",
	".less": "Less",

	".md":       "Markdown",
	".markdown": "Markdown",

	".sql": "SQL",

	".proto": "Protocol Buffer",

	".tf":     "HCL",
	".tfvars": "HCL",
	".hcl":    "HCL",

	".dockerfile": "Dockerfile",
	".mk":         "Makefile",
	".cmake":      "CMake",
}

// Sentinels for extensions whose language depends on file content, not just
// the extension — mirrors the teacher's fast-path/slow-path split.
const (
	ambiguousCLang    = "\x00ambiguous-c"
	ambiguousObjCLang = "\x00ambiguous-objc"
)

// defaultAllowedExtensions is derived once from extensionToLanguage.
var defaultAllowedExtensions = buildAllowedExtensions()

func buildAllowedExtensions() map[string]bool {
	allowed := make(map[string]bool, len(extensionToLanguage))
	for ext := range extensionToLanguage {
		allowed[ext] = true
	}

	return allowed
}

// languageForContent returns the language for ext, resolving ambiguous
// extensions (".h", ".m") by inspecting content with enry's classifier. A
// nil content falls back to the majority-case language for that extension.
func languageForContent(ext string, content []byte) string {
	lang, ok := extensionToLanguage[ext]
	if !ok {
		return ""
	}

	switch lang {
	case ambiguousCLang:
		if content == nil {
			return "C"
		}

		return enry.GetLanguage("file"+ext, content)
	case ambiguousObjCLang:
		if content == nil {
			return "Objective-C"
		}

		return enry.GetLanguage("file"+ext, content)
	default:
		return lang
	}
}
