// Package prompt assembles the grounded model input from a query and retrieved context.
package prompt

import (
	"strings"
)

// Delimiter tag names wrapping the user query and the retrieved context.
const (
	QueryTag    = "user_query"
	DocumentTag = "policy_document"
)

// ContextSeparator joins retrieved texts in rank order.
const ContextSeparator = "\n"

// Input is a model input paired with its instruction (system) channel.
type Input struct {
	Text         string
	Instructions string
}

// Assembler builds model inputs. With escapeDelimiters set, delimiter tags that occur
// inside the query or context are entity-escaped so they cannot close or open a section.
type Assembler struct {
	escapeDelimiters bool
}

// NewAssembler creates an Assembler.
func NewAssembler(escapeDelimiters bool) *Assembler {
	return &Assembler{escapeDelimiters: escapeDelimiters}
}

// Assemble wraps query and context in their delimiters. An empty context still
// yields an empty policy_document section.
func (a *Assembler) Assemble(query, context, systemPrompt string) Input {
	if a.escapeDelimiters {
		query = tagEscaper.Replace(query)
		context = tagEscaper.Replace(context)
	}

	var b strings.Builder
	b.Grow(len(query) + len(context) + 2*(len(QueryTag)+len(DocumentTag)) + 12)
	b.WriteString("<" + QueryTag + ">")
	b.WriteString(query)
	b.WriteString("</" + QueryTag + ">")
	b.WriteString("\n\n")
	b.WriteString("<" + DocumentTag + ">")
	b.WriteString(context)
	b.WriteString("</" + DocumentTag + ">")

	return Input{Text: b.String(), Instructions: systemPrompt}
}

// JoinContext concatenates retrieved texts, preserving rank order.
func JoinContext(texts []string) string {
	return strings.Join(texts, ContextSeparator)
}

var tagEscaper = strings.NewReplacer(
	"<"+QueryTag+">", "&lt;"+QueryTag+"&gt;",
	"</"+QueryTag+">", "&lt;/"+QueryTag+"&gt;",
	"<"+DocumentTag+">", "&lt;"+DocumentTag+"&gt;",
	"</"+DocumentTag+">", "&lt;/"+DocumentTag+"&gt;",
)
