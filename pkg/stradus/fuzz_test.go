// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stradus

import (
	"bytes"
	"math/bits"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

const replyAlphabet = "0123456789.:-ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz =?"

// randomReplyValue builds a printable value that does not start with a space
func randomReplyValue(rng *rand.Rand) string {
	n := rng.Intn(24)
	b := make([]byte, n)
	for i := range b {
		b[i] = replyAlphabet[rng.Intn(len(replyAlphabet))]
	}
	if n > 0 && b[0] == ' ' {
		b[0] = '0'
	}
	return string(b)
}

// splitRandom cuts data into 1..len(data) chunks at random points
func splitRandom(rng *rand.Rand, data string) []string {
	var chunks []string
	for len(data) > 0 {
		n := 1 + rng.Intn(len(data))
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

// ============================================================
// Fault Code Property Tests
// ============================================================

func TestFuzz_FaultCodeProperties(t *testing.T) {
	// The register is 16 bits wide, so every value is checked
	for v := 0; v <= 0xFFFF; v++ {
		code := FaultCode(v)
		faults := DecodeFaults(code)

		if faults == nil {
			t.Fatalf("DecodeFaults(%d) returned nil", v)
		}
		if want := bits.OnesCount16(uint16(v) &^ 1); len(faults) != want {
			t.Fatalf("DecodeFaults(%d) has %d faults, want %d", v, len(faults), want)
		}
		for i, f := range faults {
			if f == FaultLaserEmissionActive {
				t.Fatalf("DecodeFaults(%d) reported bit 0", v)
			}
			if !code.Has(f) {
				t.Fatalf("DecodeFaults(%d) reported unset bit %s", v, f)
			}
			if i > 0 && faults[i-1] >= f {
				t.Fatalf("DecodeFaults(%d) not in ascending bit order", v)
			}
		}

		state := Classify(code)
		if (state == StateFault) != (v >= 3) {
			t.Fatalf("Classify(%d) = %s", v, state)
		}

		parsed, err := ParseFaultCode(strconv.Itoa(v))
		if err != nil || parsed != code {
			t.Fatalf("ParseFaultCode(%d) = %d, %v", v, parsed, err)
		}
	}
}

// ============================================================
// Codec Fuzz Tests
// ============================================================

func TestFuzz_DecodeReplyRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	queries := Queries()
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		q := queries[rng.Intn(len(queries))]
		value := randomReplyValue(rng)

		sep := "="
		if rng.Intn(2) == 1 {
			sep = "= "
		}
		raw := q.Token() + sep + value
		if got := DecodeReply(q.Token(), raw); got != value {
			t.Fatalf("round %d: DecodeReply(%q, %q) = %q, want %q", i, q.Token(), raw, got, value)
		}
	}
}

func TestFuzz_ValidateValueEncodes(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		n := rng.Intn(MaxPulsePower + 1)
		wire, err := ValidateValue(CmdPulsePower, strconv.Itoa(n))
		if err != nil {
			t.Fatalf("round %d: PulsePower %d rejected: %v", i, n, err)
		}
		if got := string(EncodeSet(CmdPulsePower, wire)); got != "PP="+strconv.Itoa(n) {
			t.Fatalf("round %d: EncodeSet = %q", i, got)
		}

		out := MaxPulsePower + 1 + rng.Intn(100000)
		if rng.Intn(2) == 1 {
			out = -1 - rng.Intn(100000)
		}
		if _, err := ValidateValue(CmdPulsePower, strconv.Itoa(out)); err == nil {
			t.Fatalf("round %d: PulsePower %d accepted", i, out)
		}
	}
}

// ============================================================
// Transport and Engine Fuzz Tests
// ============================================================

func TestFuzz_EngineChunkedReplies(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		value := strconv.Itoa(rng.Intn(2000))
		port := newScriptedPort(splitRandom(rng, "\r\n?LW="+value+"\r\n")...)
		e := NewEngine(NewTransport(port))

		got, err := e.Get(QueryLaserWavelength)
		if err != nil {
			t.Fatalf("round %d: Get: %v", i, err)
		}
		if got != value {
			t.Fatalf("round %d: value = %q, want %q", i, got, value)
		}
	}
}

func TestFuzz_TransportPreservesBytes(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds() / 10
	if rounds == 0 {
		rounds = 1
	}

	for i := 0; i < rounds; i++ {
		n := rng.Intn(200)
		data := make([]byte, n)
		for j := range data {
			// Bias towards delimiter bytes so frames are common
			switch rng.Intn(8) {
			case 0:
				data[j] = '\r'
			case 1:
				data[j] = '\n'
			default:
				data[j] = byte(rng.Intn(256))
			}
		}

		tr := NewTransport(newScriptedPort(splitRandom(rng, string(data))...))
		var got []byte
		for {
			res := tr.ReadUntil(replyTerminator, time.Millisecond)
			if res.Err != nil {
				t.Fatalf("round %d: %v", i, res.Err)
			}
			got = append(got, res.Data...)
			if !res.TimedOut {
				if !bytes.HasSuffix(res.Data, replyTerminator) {
					t.Fatalf("round %d: frame %q lacks delimiter", i, res.Data)
				}
				if bytes.Count(res.Data, replyTerminator) != 1 {
					t.Fatalf("round %d: frame %q spans several delimiters", i, res.Data)
				}
				continue
			}
			if len(res.Data) == 0 {
				break
			}
		}

		if !bytes.Equal(got, data) {
			t.Fatalf("round %d: bytes lost or reordered\n got %q\nwant %q", i, got, data)
		}
	}
}
