package models

// Canteens orders can be placed against.
var Canteens = []string{
	"Sopanam Canteen",
	"MBA Canteen",
	"Samudra Canteen",
}

// Locations on campus a runner can deliver to.
var Locations = []string{
	"Main Gate",
	"Vashishta Hostel",
	"Agastyia Hostel",
	"AB3",
	"AB2",
	"AB1",
	"Library",
	"Auditorium",
	"MBA Block",
}

func IsCanteen(name string) bool {
	return contains(Canteens, name)
}

func IsLocation(name string) bool {
	return contains(Locations, name)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
