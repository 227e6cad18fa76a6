package ingest

import "io"

// progressReader maps bytes read during transfer onto the 30-99 band.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report func(int)
}

func newProgressReader(r io.Reader, total int64, report func(int)) *progressReader {
	return &progressReader{r: r, total: total, report: report}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 && p.total > 0 {
		p.read += int64(n)
		p.report(transferPercent(p.read, p.total))
	}
	return n, err
}

func transferPercent(read, total int64) int {
	if total <= 0 {
		return compressedProgress
	}
	if read > total {
		read = total
	}
	span := int64(transferCeiling - compressedProgress)
	return compressedProgress + int(span*read/total)
}
