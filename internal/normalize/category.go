package normalize

import (
	"regexp"
	"strings"
)

// CategoryOther is the catch-all for inputs no rule recognises.
const CategoryOther = "other"

// MaxTags caps the tag list of every record.
const MaxTags = 6

type keywordRule struct {
	name string
	tag  string
	re   *regexp.Regexp
}

func rule(name, tag string, words ...string) keywordRule {
	return keywordRule{
		name: name,
		tag:  tag,
		re:   regexp.MustCompile(`(?i)\b(?:` + strings.Join(words, "|") + `)\b`),
	}
}

// speciesRules double as the listing category vocabulary and the product
// subcategory vocabulary. Order decides ties.
var speciesRules = []keywordRule{
	rule("dogs", "dog", "dogs?", "pupp(?:y|ies)", "pups?", "canine", "retrievers?", "terriers?", "spaniels?",
		"bulldogs?", "poodles?", "labradors?", "huskies", "husky", "collies?", "shepherds?", "cockapoos?", "labradoodles?"),
	rule("cats", "cat", "cats?", "kittens?", "kitty", "feline", "maine coons?", "ragdolls?", "siamese",
		"persian", "british shorthair", "bengal", "sphynx"),
	rule("birds", "bird", "birds?", "parrots?", "budgies?", "budgerigars?", "canar(?:y|ies)", "cockatiels?", "finch(?:es)?"),
	rule("fish", "fish", "fish", "aquarium", "goldfish", "betta", "koi"),
	rule("small-pets", "small pet", "rabbits?", "bunn(?:y|ies)", "hamsters?", "guinea pigs?", "ferrets?",
		"gerbils?", "chinchillas?", "rats?", "mice"),
	rule("reptiles", "reptile", "reptiles?", "snakes?", "lizards?", "geckos?", "tortoises?", "turtles?", "bearded dragons?"),
	rule("horses", "horse", "horses?", "pon(?:y|ies)", "equine"),
}

// productRules map free-text shop categories onto the shop vocabulary.
var productRules = []keywordRule{
	rule("treats", "treats", "treats?", "snacks?", "chews?", "dental sticks?"),
	rule("food", "food", "food", "kibble", "wet food", "dry food", "feed", "nutrition", "diet"),
	rule("toys", "toys", "toys?", "balls?", "squeak(?:y|er)", "scratch(?:er|ing post)", "tug"),
	rule("beds", "beds", "beds?", "blankets?", "cushions?", "mats?", "baskets?"),
	rule("grooming", "grooming", "groom(?:ing)?", "shampoo", "brush(?:es)?", "clippers?", "nail"),
	rule("health", "health", "health", "flea", "tick", "worm(?:er|ing)?", "vitamins?", "supplements?", "medic(?:al|ine)"),
	rule("walking", "walking", "leads?", "leash(?:es)?", "collars?", "harness(?:es)?"),
	rule("travel", "travel", "carriers?", "crates?", "travel", "car seats?"),
	rule("habitats", "habitats", "cages?", "hutch(?:es)?", "tanks?", "terrariums?", "vivariums?", "aquariums?", "litter"),
	rule("accessories", "accessories", "bowls?", "feeders?", "fountains?", "tags?", "accessor(?:y|ies)", "clothing", "coats?"),
}

func match(rules []keywordRule, text string) (keywordRule, bool) {
	for _, r := range rules {
		if r.re.MatchString(text) {
			return r, true
		}
	}
	return keywordRule{}, false
}

// Species returns the species slug found in text ("dogs", "cats", …) or
// CategoryOther.
func Species(text string) string {
	if r, ok := match(speciesRules, text); ok {
		return r.name
	}
	return CategoryOther
}

// speciesTag returns the singular keyword tag for a species found in text.
func speciesTag(text string) string {
	if r, ok := match(speciesRules, text); ok {
		return r.tag
	}
	return ""
}

// ProductCategory maps a network's free-text category onto the shop
// vocabulary, trying the title when the category alone is inconclusive.
func ProductCategory(sourceCategory, title string) string {
	for _, text := range []string{sourceCategory, title} {
		if r, ok := match(productRules, text); ok {
			return r.name
		}
	}
	return CategoryOther
}

// Tags combines fixed contextual tags with the category and a species
// keyword from the title, de-duplicated and capped at MaxTags.
func Tags(fixed []string, category, title string) []string {
	candidates := append(append([]string{}, fixed...), category, speciesTag(title))
	seen := make(map[string]bool, len(candidates))
	tags := make([]string, 0, MaxTags)
	for _, t := range candidates {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || t == CategoryOther || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
		if len(tags) == MaxTags {
			break
		}
	}
	return tags
}
