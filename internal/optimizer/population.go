package optimizer

import (
	"cmp"
	"math"
	"slices"
)

// Population 持有 2×popSize 个槽位及其适应度，二者按下标一一对应
type Population struct {
	chromosomes []Chromosome
	fitness     []float64
	active      int // 下一次填充的起始槽位
}

func newPopulation(capacity int) *Population {
	fitness := make([]float64, capacity)
	for i := range fitness {
		fitness[i] = UnassignedFitness
	}

	return &Population{
		chromosomes: make([]Chromosome, capacity),
		fitness:     fitness,
	}
}

func (p *Population) Len() int {
	return len(p.chromosomes)
}

func (p *Population) Chromosome(i int) Chromosome {
	return p.chromosomes[i]
}

func (p *Population) Fitness(i int) float64 {
	return p.fitness[i]
}

// Set 将染色体放入槽位 i
func (p *Population) Set(i int, ch Chromosome, fitness float64) {
	p.chromosomes[i] = ch
	p.fitness[i] = fitness
}

type slotKey struct {
	index    int
	assigned bool
	fitness  float64
}

// compareSlots 按适应度降序；未赋值的槽位排在最后，非有限值排在所有有限值之后
func compareSlots(a, b slotKey) int {
	if a.assigned != b.assigned {
		if a.assigned {
			return -1
		}
		return 1
	}

	af, bf := a.fitness, b.fitness
	if math.IsNaN(af) {
		af = math.Inf(-1)
	}
	if math.IsNaN(bf) {
		bf = math.Inf(-1)
	}
	return cmp.Compare(bf, af)
}

// Sort 对前 n 个槽位按适应度降序排序，染色体与适应度成对移动
func (p *Population) Sort(n int) {
	n = min(n, len(p.chromosomes))

	keys := make([]slotKey, n)
	for i := 0; i < n; i++ {
		keys[i] = slotKey{
			index:    i,
			assigned: p.chromosomes[i] != nil,
			fitness:  p.fitness[i],
		}
	}

	slices.SortStableFunc(keys, compareSlots)

	chromosomes := make([]Chromosome, n)
	fitness := make([]float64, n)
	for i, k := range keys {
		chromosomes[i] = p.chromosomes[k.index]
		fitness[i] = p.fitness[k.index]
	}

	copy(p.chromosomes, chromosomes)
	copy(p.fitness, fitness)
}

// Truncate 保留前 n 个槽位作为下一代的基础，之后的填充从 n 开始
func (p *Population) Truncate(n int) {
	p.active = n
}

// Active 返回下一次填充的起始槽位
func (p *Population) Active() int {
	return p.active
}
