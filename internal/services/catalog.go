package services

// catalogEntry is one company of the fixed investment catalog.
type catalogEntry struct {
	Name, Symbol, Category, BasePrice, Description, Icon string
}

var defaultCatalog = []catalogEntry{
	{"EcoEnergy Plus", "EEP", "Renewable energy", "25.50", "Leader in solar and wind power", "fa-leaf"},
	{"TechFuture AI", "TFAI", "Artificial intelligence", "120.75", "Cutting-edge AI development", "fa-microchip"},
	{"SpaceX Ventures", "SPXV", "Aerospace", "350.20", "Commercial space exploration", "fa-rocket"},
	{"BioMed Solutions", "BMS", "Biotechnology", "85.40", "Advanced medical research", "fa-dna"},
	{"GreenTransport", "GRT", "Transport", "42.30", "Sustainable electric vehicles", "fa-car"},
	{"CloudNet Systems", "CNS", "Technology", "65.80", "Cloud computing solutions", "fa-cloud"},
	{"FoodTech Innovations", "FTI", "Food", "38.90", "Sustainable food technology", "fa-utensils"},
	{"RoboTech Industries", "RTI", "Robotics", "95.60", "Advanced industrial automation", "fa-robot"},
	{"WaterPure Solutions", "WPS", "Environment", "22.75", "Water purification technologies", "fa-tint"},
	{"Quantum Computing", "QCC", "Technology", "180.50", "Next-generation quantum computing", "fa-atom"},
	{"EcoFashion", "EFN", "Fashion", "31.20", "Sustainable and ethical clothing", "fa-tshirt"},
	{"SmartHome Tech", "SHT", "Technology", "55.40", "Smart home systems", "fa-home"},
	{"Virtual Reality Co", "VRC", "Entertainment", "78.90", "Immersive virtual reality experiences", "fa-vr-cardboard"},
	{"BioFuels Global", "BFG", "Energy", "19.85", "Sustainable biofuel production", "fa-gas-pump"},
	{"HealthTech Plus", "HTP", "Health", "62.30", "Healthcare technologies", "fa-heartbeat"},
	{"CryptoVault", "CRV", "Finance", "145.70", "Digital asset security", "fa-lock"},
	{"Urban Farming", "URF", "Agriculture", "27.60", "Urban agriculture solutions", "fa-seedling"},
	{"NanoTech Materials", "NTM", "Materials", "92.40", "Advanced nanoscale materials", "fa-atom"},
	{"EduTech Global", "EDG", "Education", "41.80", "Digital learning platforms", "fa-graduation-cap"},
	{"AutoDrive Systems", "ADS", "Automotive", "125.30", "Autonomous driving technology", "fa-car-side"},
	{"Renewable Storage", "RES", "Energy", "53.70", "Energy storage solutions", "fa-battery-full"},
	{"Ocean Cleanup", "OCC", "Environment", "18.90", "Ocean cleanup technologies", "fa-water"},
	{"Digital Security", "DSC", "Cybersecurity", "88.60", "Data and systems protection", "fa-shield-alt"},
	{"Space Tourism", "SPT", "Tourism", "215.40", "Space tourism experiences", "fa-space-shuttle"},
	{"AI Healthcare", "AIH", "Health", "105.80", "AI-powered medical diagnostics", "fa-user-md"},
}
