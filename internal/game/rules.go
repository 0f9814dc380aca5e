package game

// turnRules says whether an attack result hands the turn to the defender.
// A miss passes the turn; a hit, sinking or not, earns another move.
var turnRules = map[Status]bool{
	StatusMiss:   true,
	StatusShot:   false,
	StatusKilled: false,
}

// PassesTurn reports whether the attack that produced status ends the
// attacker's turn.
func PassesTurn(status Status) bool {
	return turnRules[status]
}
