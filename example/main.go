// main.go -- build a bucketed signature store from text input
//
// (c) Sudhi Herle 2024
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

// sigbuckets reads newline separated keys from one or more input files
// (or stdin), ingests them into a bucketed signature store and prints
// bucket statistics. With -o FILE it also emits the packed signature
// table for the key set; the table is written atomically so a crash
// never leaves a truncated file behind.

package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
	flag "github.com/opencoff/pflag"

	"github.com/opencoff/go-bhstore"
)

var Z string = os.Args[0]

func main() {
	var bsize int
	var l2seg uint
	var width uint
	var tmpdir, out string
	var meta, help bool

	flag.IntVarP(&bsize, "bucket-size", "b", 256, "target mean bucket size")
	flag.UintVarP(&l2seg, "segments", "L", 8, "log2 of the number of disk segments")
	flag.UintVarP(&width, "width", "w", 16, "signature table width in bits")
	flag.StringVarP(&tmpdir, "tmpdir", "d", "", "directory for temporary segments")
	flag.StringVarP(&out, "output", "o", "", "write the packed signature table to `FILE`")
	flag.BoolVarP(&meta, "meta", "m", false, "dump store metadata")
	flag.BoolVarP(&help, "help", "h", false, "show this help message and exit")
	flag.Parse()

	if help {
		usage()
	}

	st, err := bhstore.New(&bhstore.Config{
		Dir:          tmpdir,
		BucketSize:   bsize,
		Log2Segments: l2seg,
	})
	if err != nil {
		die("can't create store: %s", err)
	}
	defer st.Close()

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"-"}
	}

	var keys [][]byte
	for _, fn := range args {
		k, err := readKeys(fn)
		if err != nil {
			die("%s", err)
		}
		keys = append(keys, k...)
	}

	if err = st.AddKeyVals(keys, nil); err != nil {
		die("can't ingest: %s", err)
	}

	// find a collision free seed before recording anything durable
	if err = st.CheckAndRetry(keys, nil); err != nil {
		die("%s", err)
	}

	if meta {
		st.DumpMeta(os.Stdout)
	}

	if err = stats(st, os.Stdout); err != nil {
		die("%s", err)
	}

	if len(out) > 0 {
		if err = writeTable(st, width, out); err != nil {
			die("%s", err)
		}
		fmt.Printf("seed %#x, signature table in %s\n", st.Seed(), out)
	}
}

func readKeys(fn string) ([][]byte, error) {
	fd := os.Stdin
	if fn != "-" {
		var err error
		fd, err = os.Open(fn)
		if err != nil {
			return nil, err
		}
		defer fd.Close()
	}

	var keys [][]byte
	sc := bufio.NewScanner(fd)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		keys = append(keys, append([]byte(nil), line...))
	}
	return keys, sc.Err()
}

func stats(st *bhstore.Store, w *os.File) error {
	it, err := st.Iter()
	if err != nil {
		return err
	}

	var nbuckets, nrec, maxsz int
	for it.Next() {
		b := it.Bucket()
		nbuckets++
		nrec += b.Size()
		if b.Size() > maxsz {
			maxsz = b.Size()
		}
	}
	if err = it.Err(); err != nil {
		return err
	}

	avg := 0.0
	if nbuckets > 0 {
		avg = float64(nrec) / float64(nbuckets)
	}
	fmt.Fprintf(w, "%d keys in %d buckets; mean %4.1f, largest %d\n",
		nrec, nbuckets, avg, maxsz)
	return nil
}

func writeTable(st *bhstore.Store, width uint, out string) error {
	tbl, err := st.Signatures(width)
	if err != nil {
		return err
	}

	var b bytes.Buffer
	if _, err = tbl.MarshalBinary(&b); err != nil {
		return err
	}
	return atomic.WriteFile(out, &b)
}

func die(f string, args ...interface{}) {
	s := fmt.Sprintf(f, args...)
	fmt.Fprintf(os.Stderr, "%s: %s\n", Z, s)
	os.Exit(1)
}

func usage() {
	fmt.Printf(`%s - build a bucketed signature store from text input

Usage: %s [options] [INPUTS...]

Keys are read one per line from the inputs ('-' denotes stdin).

Options:
`, Z, Z)
	flag.PrintDefaults()
	os.Exit(0)
}
