package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
)

const placeholderRule = `Replace specific values with xxxx_VARIABLE_NAME placeholders:
   * Company/person names -> xxxx_COMPANY_NAME, xxxx_CLIENT_NAME
   * Dates -> xxxx_CONTRACT_DATE, xxxx_START_DATE, xxxx_END_DATE
   * Amounts/prices -> xxxx_AMOUNT, xxxx_PRICE, xxxx_TOTAL
   * Addresses -> xxxx_ADDRESS, xxxx_CITY
   * Phone/email -> xxxx_PHONE, xxxx_EMAIL
   * ID numbers -> xxxx_CONTRACT_NUMBER, xxxx_REFERENCE
   Placeholder names use only uppercase letters, digits and underscores.`

var reconstructPrompt = `You are reconstructing a legal contract document from extracted text content.

SOURCE TYPE: %s (%s)

EXTRACTED CONTENT:
%s

TASK:
Reconstruct this document as clean, semantic HTML:

1. EXACT TEXT PRESERVATION:
   - Keep ALL text exactly as extracted; do not summarize or modify wording
   - Preserve the complete content of every section

2. FORMAT RECONSTRUCTION:
   - Identify and properly format headings (h1, h2, h3) based on context
   - Reconstruct paragraph structure
   - Recreate any lists (bulleted or numbered) that appear in the content
   - Rebuild tables if tabular data is detected

3. DOCUMENT STRUCTURE:
   - Organize into logical sections as they appear in the original
   - Preserve any article/section numbering
   - Use semantic HTML tags only (h1-h6, p, ul, ol, li, table, etc.)

4. PLACEHOLDER CONVERSION:
   ` + placeholderRule + `

5. DO NOT INCLUDE:
   - No <style> tags or inline styles
   - No style attributes
   - No CSS; styling is handled externally

Return JSON:
{
  "title": "Extracted document title",
  "html": "Clean semantic HTML without any styles"
}`

var extractPagePrompt = `EXACT TEXT EXTRACTION - Page %d of %d

CRITICAL INSTRUCTIONS:
1. Extract ALL text EXACTLY as it appears on this page: every word, every paragraph, every line
2. Preserve the EXACT formatting: headings, paragraphs, bullet points, numbered lists, tables
3. Maintain the original document structure and hierarchy
4. Do NOT summarize, paraphrase, or skip any content
5. Do NOT add any content that is not visible on the page

OUTPUT FORMAT:
- Return clean HTML that faithfully reproduces the page content
- Use <h1>-<h6> for headings, <p> for paragraphs, <ul>/<ol> for lists, <table> for tables
- Never use style attributes or <style> tags
- ` + placeholderRule + `

Return ONLY the HTML content for this page, no markdown code blocks.`

var assemblePrompt = `You are assembling a multi-page legal document from %d extracted pages.

EXTRACTED PAGE CONTENTS:
%s

TASK:
Create a clean HTML document with the following requirements:

1. PAGE STRUCTURE:
   - Wrap each original page content, in the order given, in a div with class "a4-page" and id "page-N"
   - Add a page number div at the end of each page: <div class="page-number">Page X of %d</div>

2. HTML STRUCTURE:
   - Wrap everything in a single container: <div class="document-container">...</div>
   - Use semantic HTML: h1, h2, h3 for headings, p for paragraphs, ul/ol for lists, table for tables

3. CONTENT PRESERVATION:
   - Keep ALL extracted text exactly as provided
   - Maintain all headings, paragraphs, lists, and tables
   - Keep all xxxx_VARIABLE_NAME placeholders

4. DO NOT INCLUDE:
   - No <style> tags
   - No inline style attributes
   - No CSS classes other than: document-container, a4-page, page-number

Return JSON with:
{
  "title": "Document title extracted from content",
  "html": "Clean HTML without any styles"
}`

var analyzeChunkPrompt = `This is part %d of a larger contract. Reconstruct the text exactly as seen but in clean HTML tags. ` +
	`Replace specific details (names, dates, amounts) with descriptive xxxx_VARIABLE_NAME placeholders. ` +
	`Focus only on structure and content extraction. Return ONLY the HTML snippet.`

var synthesizePrompt = `You have analyzed a legacy contract in parts. Here is the raw extracted HTML content from all parts:

%s

Task:
1. Stitch these parts into a single, cohesive, and professional Orange Business Services contract template.
2. Standardize the HTML structure. Use Orange branding (Headings in #FF7900).
3. Ensure all placeholders follow the xxxx_VARIABLE_NAME format consistently.
4. Remove duplicate headers/footers that might have appeared in multiple parts.
5. Return JSON: { "title": "A descriptive title", "html": "The full synthesized HTML" }.`

var questionsPrompt = `You are a Senior Legal Counsel at Orange. Based on this context:
- Format: %s
- Object: %s
- Purpose: %s
- Client: %s
- Strategic Context: %s

Generate exactly %d critical, specific, and short follow-up questions for the contract template.
Focus on business risks, SLAs, and liability.
Return ONLY a valid JSON array of strings.`

var templatePrompt = `Generate a professional Orange Business contract template in HTML.
Inputs:
- Format: %s
- Client: %s
- Object: %s
- Purpose: %s
- Regulatory Context: %s
- Details: %s

Requirements:
1. Orange #FF7900 branding and professional legal structure.
2. Use xxxx_VARIABLE placeholders for all specific details (uppercase letters, digits and underscores only).
3. Return JSON: { "title": "...", "category": "...", "html": "..." }.`

var editPrompt = `Task: Modify the contract HTML based on the following instruction.
Instruction: "%s"
%s

Document HTML:
%s

Return ONLY the updated HTML. Do not include markdown blocks.`

func reconstructRequest(raw string, source SourceType, info string) string {
	return fmt.Sprintf(reconstructPrompt, source.Label(), info, raw)
}

func extractPageRequest(page, total int) string {
	return fmt.Sprintf(extractPagePrompt, page, total)
}

// markPages wraps each fragment in START/END comments carrying its 1-based
// position in the slice.
func markPages(fragments []string) string {
	parts := make([]string, len(fragments))
	for i, f := range fragments {
		parts[i] = fmt.Sprintf("<!-- PAGE %d START -->\n%s\n<!-- PAGE %d END -->", i+1, f, i+1)
	}
	return strings.Join(parts, "\n\n")
}

func assembleRequest(fragments []string, total int) string {
	return fmt.Sprintf(assemblePrompt, total, markPages(fragments), total)
}

func analyzeChunkRequest(index int) string {
	return fmt.Sprintf(analyzeChunkPrompt, index+1)
}

func synthesizeRequest(chunks []string) string {
	return fmt.Sprintf(synthesizePrompt, strings.Join(chunks, "\n\n"))
}

func questionsRequest(a Answers, n int) string {
	return fmt.Sprintf(questionsPrompt, a.Format, a.Object, a.Purpose, a.ClientName, a.Context, n)
}

func templateRequest(a Answers, questions []string, answers map[int]string) string {
	// Keyed by question text so the model sees what each answer responds to.
	details := make(map[string]string, len(questions))
	for i, q := range questions {
		details[q] = answers[i]
	}
	b, _ := json.Marshal(details)
	return fmt.Sprintf(templatePrompt, a.Format, a.ClientName, a.Object, a.Purpose, a.Context, b)
}

func editRequest(html, instruction, selection string) string {
	scope := "Scope: Apply the change to the whole document where relevant."
	if selection != "" {
		scope = fmt.Sprintf("Scope: Only change this specific text within the document: \"%s\"", selection)
	}
	return fmt.Sprintf(editPrompt, instruction, scope, html)
}
