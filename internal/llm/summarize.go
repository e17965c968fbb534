package llm

import "context"

const summarySystemPrompt = "You are an assistant skilled at summarizing documents. " +
	"For a short document, write a specific and detailed summary. " +
	"For a long document, write a high-level overview of its main points."

// Summarize asks the model for one summary of a document's full text.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	return c.Complete(ctx, summarySystemPrompt, "Summarize the following document.\n\n"+text)
}
