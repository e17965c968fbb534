// Package extract turns an uploaded file into ordered plain-text segments.
//
// The loader is chosen by file extension:
//   - .txt, .text, .md, .markdown, .log: plain text, one segment
//   - .html, .htm: body text with markup removed, one segment
//   - .pdf: one segment per page
//   - .csv: one segment per data row, rendered as "column: value" lines
//
// Extraction is stateless. Every failure (unknown extension, unreadable
// file, no text) is reported before any downstream stage writes state.
//
// # Usage
//
//	doc, err := extract.New().Extract(ctx, "/data/finance-q1/report.pdf")
//	if err != nil {
//	    return err
//	}
//	text := doc.FullText()
package extract
