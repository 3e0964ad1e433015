package store

import "github.com/corpusd/corpusd/internal/types"

const targetChunkBytes = 1024

// PackedLine is one extracted line after chunk assignment.
type PackedLine struct {
	LineNumber int
	ChunkNum   int
	Offset     int // zero-based line index inside its chunk
}

// Pack groups a file's lines into ~1 KiB chunks on line boundaries. A
// single line larger than the target is kept intact in its own chunk.
func Pack(filePath string, lines []types.Line) ([]ChunkData, []PackedLine) {
	var chunks []ChunkData
	var packed []PackedLine

	chunkNum := 0
	var cur []string
	curBytes := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		chunks = append(chunks, ChunkData{FilePath: filePath, ChunkNum: chunkNum, Lines: cur})
		chunkNum++
		cur = nil
		curBytes = 0
	}

	for _, ln := range lines {
		lineBytes := len(ln.Content)
		if curBytes > 0 && curBytes+lineBytes+1 > targetChunkBytes {
			flush()
		}
		offset := len(cur)
		cur = append(cur, ln.Content)
		curBytes += lineBytes + 1
		packed = append(packed, PackedLine{LineNumber: ln.LineNumber, ChunkNum: chunkNum, Offset: offset})
		if lineBytes > targetChunkBytes {
			flush()
		}
	}
	flush()

	return chunks, packed
}
