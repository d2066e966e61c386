package gen

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed biomes.yaml
var defaultCatalog []byte

type Biome struct {
	Name      string  `yaml:"name"`
	Weight    float64 `yaml:"weight"`
	BasePrice string  `yaml:"base_price"`

	price decimal.Decimal
}

func (b Biome) Price() decimal.Decimal {
	return b.price
}

type Catalog struct {
	Biomes []Biome `yaml:"biomes"`

	total float64
}

// ParseCatalog 解析并校验群系目录：名字唯一，权重为正，价格是合法十进制数。
func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("biomes.yaml: %w", err)
	}
	if len(c.Biomes) == 0 {
		return nil, fmt.Errorf("biomes.yaml: no biomes")
	}
	seen := make(map[string]bool, len(c.Biomes))
	for i := range c.Biomes {
		b := &c.Biomes[i]
		if b.Name == "" || seen[b.Name] {
			return nil, fmt.Errorf("biomes.yaml: biome #%d has empty or duplicate name %q", i, b.Name)
		}
		seen[b.Name] = true
		if b.Weight <= 0 {
			return nil, fmt.Errorf("biomes.yaml: biome %s weight must be positive", b.Name)
		}
		p, err := decimal.NewFromString(b.BasePrice)
		if err != nil {
			return nil, fmt.Errorf("biomes.yaml: biome %s base_price: %w", b.Name, err)
		}
		b.price = p
		c.total += b.Weight
	}
	return &c, nil
}

// LoadCatalog path 为空时使用内置目录。
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(raw)
}

func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

// Pick 按权重选群系，r 取 [0,1)。
func (c *Catalog) Pick(r float64) Biome {
	target := r * c.total
	for _, b := range c.Biomes {
		if target < b.Weight {
			return b
		}
		target -= b.Weight
	}
	return c.Biomes[len(c.Biomes)-1]
}

func (c *Catalog) Lookup(name string) (Biome, bool) {
	for _, b := range c.Biomes {
		if b.Name == name {
			return b, true
		}
	}
	return Biome{}, false
}
