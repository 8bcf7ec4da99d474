// Command stackview renders, plays and inspects image studies with the
// stackview viewer core.
package main

func main() {
	Execute()
}
