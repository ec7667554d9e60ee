package main

// ipgen.go generates deterministic client-socket-address datasets for
// load-testing edgelru outside `go test`, emitting the address-shaped keys
// this cache actually routes on. Each line is "family,a.b.c.d,port" for v4
// or "family,hex16,port" for v6.
//
// Usage:
//   go run ./tools/ipgen -n 1000000 -dist=zipf -v6frac=0.2 -seed=42 -out keys.csv
//
// Flags:
//   -n       number of keys to generate (default 1e6)
//   -dist    distribution over the address space: "uniform" or "zipf"
//   -v6frac  fraction of keys that are IPv6 (default 0.1)
//   -zipfs   Zipf s parameter (>1)  (default 1.2)
//   -zipfv   Zipf v parameter (>=1) (default 1.0)
//   -seed    RNG seed (default current time)
//   -out     output file (default stdout)

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"
)

func main() {
	var (
		n       = flag.Int("n", 1_000_000, "number of keys to generate")
		dist    = flag.String("dist", "uniform", "distribution: uniform or zipf")
		v6frac  = flag.Float64("v6frac", 0.1, "fraction of generated keys that are IPv6")
		zipfS   = flag.Float64("zipfs", 1.2, "zipf s parameter (>1)")
		zipfV   = flag.Float64("zipfv", 1.0, "zipf v parameter (>=1)")
		seedVal = flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
		outPath = flag.String("out", "", "output file (default stdout)")
	)
	flag.Parse()

	rnd := rand.New(rand.NewSource(*seedVal))

	var gen func() uint64
	switch *dist {
	case "uniform":
		gen = rnd.Uint64
	case "zipf":
		if *zipfS <= 1.0 || *zipfV < 1.0 {
			fmt.Fprintln(os.Stderr, "zipfs must be >1 and zipfv >=1")
			os.Exit(1)
		}
		z := rand.NewZipf(rnd, *zipfS, *zipfV, ^uint64(0))
		gen = z.Uint64
	default:
		fmt.Fprintln(os.Stderr, "unknown dist:", *dist)
		os.Exit(1)
	}

	var out *os.File
	var err error
	if *outPath == "" {
		out = os.Stdout
	} else {
		out, err = os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot create file:", err)
			os.Exit(1)
		}
		defer out.Close()
	}

	w := bufio.NewWriterSize(out, 1<<20)
	defer w.Flush()

	for i := 0; i < *n; i++ {
		word := gen()
		port := uint16(gen())
		if rnd.Float64() < *v6frac {
			hi := gen()
			fmt.Fprintf(w, "6,%016x%016x,%d\n", hi, word, port)
			continue
		}
		a := byte(word >> 24)
		b := byte(word >> 16)
		c := byte(word >> 8)
		d := byte(word)
		fmt.Fprintf(w, "4,%d.%d.%d.%d,%d\n", a, b, c, d, port)
	}
}
