package util

import "github.com/pkoukk/tiktoken-go"

// TruncateTokens cuts text down to at most maxTokens tokens under the given
// encoding. Embedding and completion inputs are budgeted this way instead of
// by bytes so multi-byte text does not overshoot the model limit.
func TruncateTokens(text string, encoder string, maxTokens int) (string, error) {
	if text == "" || maxTokens <= 0 {
		return "", nil
	}
	enc, err := tiktoken.GetEncoding(encoder)
	if err != nil {
		return "", err
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, nil
	}
	return enc.Decode(tokens[:maxTokens]), nil
}
