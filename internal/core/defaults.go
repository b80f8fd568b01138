package core

// DefaultEntity is shown when no daily card can be fetched.
var DefaultEntity = Entity{
	ID:      "1",
	Content: "Life is like a box of chocolates. You never know what you're gonna get.",
	Author:  "Forrest Gump",
	Kind:    KindInspirational,
}

// FallbackEntities are rotated through when a refresh cannot reach the server.
var FallbackEntities = []Entity{
	{
		ID:      "fallback-1",
		Content: "Every day we have not danced is a day lost to life.",
		Author:  "Nietzsche",
		Kind:    KindPhilosophy,
	},
	{
		ID:      "fallback-2",
		Content: "Life isn't about waiting for the storm to pass, it's about learning to dance in the rain.",
		Author:  "Anonymous",
		Kind:    KindInspirational,
	},
	{
		ID:      "fallback-3",
		Content: "Where the hills and streams end and there seems no road beyond, amidst shading willows and blooming flowers another village appears.",
		Author:  "Lu You",
		Kind:    KindPoetry,
	},
}

// Fallback returns the fallback entity for the n-th refresh.
func Fallback(n int) Entity {
	if n < 0 {
		n = -n
	}
	return FallbackEntities[n%len(FallbackEntities)]
}

// Builtin returns the built-in card with the given id.
func Builtin(id string) (Entity, bool) {
	if id == DefaultEntity.ID {
		return DefaultEntity, true
	}
	for _, e := range FallbackEntities {
		if e.ID == id {
			return e, true
		}
	}
	return Entity{}, false
}
