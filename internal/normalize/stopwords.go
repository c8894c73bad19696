package normalize

func wordSet(groups ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, g := range groups {
		for _, w := range g {
			set[w] = struct{}{}
		}
	}
	return set
}

var (
	articles = []string{"a", "an", "and", "of", "the", "this", "these"}

	possessives = []string{"his", "her", "hers", "its", "their", "theirs"}

	// Generic nouns that questions use to point at the answer.
	indicatorNouns = []string{
		"figure", "figures", "entity", "entities", "object", "objects",
		"substance", "substances", "character", "characters",
	}

	// Pronouns, copulas, prepositions and question phrasing common to clues.
	clueFiller = []string{
		"that", "he", "him", "his", "she", "her", "hers", "is", "are", "work",
		"works", "who", "which", "was", "were", "one", "another", "as", "in",
		"when", "they", "their", "them", "name", "identify", "man", "mans",
		"from", "on", "to", "by", "with", "title", "titular", "those", "it",
		"its", "be", "at",
	}

	// Leftovers of acceptance instructions on answer lines.
	answerInstructions = []string{
		"accept", "prompt", "reject", "directed", "antiprompt", "or",
	}
)

var (
	keyStopwords    = wordSet(articles, possessives, indicatorNouns)
	answerStopwords = wordSet(answerInstructions)
	bodyStopwords   = wordSet(articles, clueFiller, indicatorNouns)
)
