// Package chunker divides manual text into overlapping fragments for
// embedding and keyword indexing.
//
// The chunker slides a fixed-size token window over the document, advancing
// by chunkSize-chunkOverlap tokens per step. Overlap keeps instructions that
// straddle a boundary retrievable from both neighboring chunks.
//
// # Basic Usage
//
//	c, err := chunker.New(300, 100, true)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	chunks := c.ChunkDocument("owner_manual", text)
//	for _, chunk := range chunks {
//	    fmt.Printf("%s: %d tokens at offset %d\n",
//	        chunk.ID, chunk.TokenCount, chunk.StartOffset)
//	}
//
// # Determinism
//
// Chunk ids derive from the source document id and the chunk's sequence
// position, so re-chunking identical input reproduces identical ids. The
// index rebuild path relies on this to correlate vector and keyword entries.
//
// # Token Units
//
// Lengths are measured with the shared tokenizer: words for space-delimited
// scripts, single runes for Japanese scripts. A chunkSize of 300 therefore
// means 300 words of English or 300 characters of Japanese, matching how the
// keyword index counts document length.
package chunker
