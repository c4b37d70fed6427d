package gacha

// Rarity is one of the five discovery tiers.
type Rarity string

const (
	Common    Rarity = "common"
	Uncommon  Rarity = "uncommon"
	Rare      Rarity = "rare"
	Epic      Rarity = "epic"
	Legendary Rarity = "legendary"
)

// Rarities lists every tier from highest to lowest.
var Rarities = []Rarity{Legendary, Epic, Rare, Uncommon, Common}

func (r Rarity) Valid() bool {
	switch r {
	case Common, Uncommon, Rare, Epic, Legendary:
		return true
	}
	return false
}

func (r Rarity) String() string { return string(r) }
