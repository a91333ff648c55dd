//go:build !race

package approval

func passwordHashCost() int {
	return 14
}
