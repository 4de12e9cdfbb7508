//go:build llama

package inference

// cgo link directives for the in-process llama backend. The rpath of $ORIGIN
// lets the loader find libllama.so next to the binary in ./bin.
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"
