package brackets

import (
	"math/bits"
	"sort"
)

// NextPowerOfTwo возвращает минимальную степень двойки >= n.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	if n&(n-1) == 0 {
		return n
	}
	return 1 << bits.Len(uint(n))
}

func log2(n int) int {
	return bits.Len(uint(n)) - 1
}

// SeedPositions возвращает сид (1-based) для каждого слота первого круга.
// Соседние слоты образуют пары: сид 1 встречает сид 2 только в финале,
// 1 против 4 и 2 против 3 в полуфиналах. Для сетки на 8: [1 8 4 5 2 7 3 6].
func SeedPositions(bracketSize int) []int {
	positions := []int{1}
	for len(positions) < bracketSize {
		mirror := len(positions)*2 + 1
		doubled := make([]int, 0, len(positions)*2)
		for _, seed := range positions {
			doubled = append(doubled, seed, mirror-seed)
		}
		positions = doubled
	}
	return positions
}

// orderSlots сортирует участников по сиду, при равных сидах порядок
// стабилизируется по registration id.
func orderSlots(slots []SeedSlot) []SeedSlot {
	ordered := make([]SeedSlot, len(slots))
	copy(ordered, slots)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Seed != ordered[j].Seed {
			return ordered[i].Seed < ordered[j].Seed
		}
		return ordered[i].ParticipantID < ordered[j].ParticipantID
	})
	return ordered
}

// placeSlots раскладывает отсортированных участников по слотам первого
// круга. Сиды нормализуются в 1..n; слоты, чей сид превышает число
// участников, остаются пустыми — это bye для соседа по паре.
func placeSlots(ordered []SeedSlot, bracketSize int) []*SeedSlot {
	placed := make([]*SeedSlot, bracketSize)
	for pos, seed := range SeedPositions(bracketSize) {
		if seed > len(ordered) {
			continue
		}
		slot := ordered[seed-1]
		slot.Seed = seed
		placed[pos] = &slot
	}
	return placed
}
