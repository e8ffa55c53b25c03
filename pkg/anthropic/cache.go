package anthropic

// BuildCachedSystemBlocks wraps a system prompt shared by many calls in a
// single block with an ephemeral cache breakpoint.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "5m"},
		},
	}
}
