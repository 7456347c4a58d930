package inode

import (
	"github.com/googlecloudplatform/blockfs/internal/blockdev"
)

// Length returns the inode's current on-disk byte length.
func (in *Inode) Length() int64 {
	in.desc.mu.Lock()
	defer in.desc.mu.Unlock()
	return in.mgr.readLength(in.sector)
}

// ReadAt implements spec.md §4.4.5: holds the inode's metadata lock for
// the full call, returns 0 immediately at or past EOF (invariant 8: short
// read, never sparse-filled data), and substitutes zero bytes for any
// 0-valued pointer found within length rather than allocating (the
// resolved Open Question from spec.md §9).
func (in *Inode) ReadAt(buf []byte, off int64) (n int, err error) {
	in.desc.mu.Lock()
	defer in.desc.mu.Unlock()

	length := in.mgr.readLength(in.sector)
	if off >= length {
		return 0, nil
	}

	remaining := len(buf)
	if int64(remaining) > length-off {
		remaining = int(length - off)
	}

	for remaining > 0 {
		blockIdx := off / blockdev.SectorSize
		blockOff := int(off % blockdev.SectorSize)
		chunk := blockdev.SectorSize - blockOff
		if chunk > remaining {
			chunk = remaining
		}

		dataSector, ok := in.mgr.lookup(in.sector, off)
		if !ok {
			// Sparse hole within length: zero-fill without allocating.
			for i := 0; i < chunk; i++ {
				buf[n+i] = 0
			}
		} else {
			in.mgr.cache.Read(dataSector, buf[n:n+chunk], blockOff, chunk)
		}

		n += chunk
		off += int64(chunk)
		remaining -= chunk
	}

	return n, nil
}

// WriteAt implements spec.md §4.4.5: returns 0 immediately if writes are
// denied; grows length (before allocation, so the file grows sparsely) if
// the write extends past EOF; allocates on demand via lookupOrCreate;
// returns the bytes written so far on allocation failure rather than an
// error, per spec.md §7's "Write-at returns partial byte counts rather
// than errors."
func (in *Inode) WriteAt(buf []byte, off int64) (n int, err error) {
	in.desc.mu.Lock()
	defer in.desc.mu.Unlock()

	if in.desc.denyWriteCnt > 0 {
		return 0, nil
	}

	end := off + int64(len(buf))
	if end > MaxBytes {
		return 0, nil
	}

	length := in.mgr.readLength(in.sector)
	if end > length {
		in.mgr.writeLength(in.sector, end)
	}

	remaining := len(buf)
	for remaining > 0 {
		blockOff := int(off % blockdev.SectorSize)
		chunk := blockdev.SectorSize - blockOff
		if chunk > remaining {
			chunk = remaining
		}

		dataSector, allocErr := in.mgr.lookupOrCreate(in.sector, off)
		if allocErr != nil {
			// Pull the length back to the end of the bytes actually
			// stored (off has advanced past them), never below the
			// pre-write length, so a failed grow does not claim more
			// file than was written.
			if end > length {
				in.mgr.writeLength(in.sector, max(length, off))
			}
			return n, nil
		}

		in.mgr.cache.Write(dataSector, buf[n:n+chunk], blockOff, chunk)

		n += chunk
		off += int64(chunk)
		remaining -= chunk
	}

	return n, nil
}
