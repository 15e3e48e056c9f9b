package mysql

// bootstrapSQL is run in order by Bootstrap. Procedures are recreated so a
// changed body takes effect.
var bootstrapSQL = []string{
	`CREATE TABLE IF NOT EXISTS geoname_locations (
	geoname_id             INT NOT NULL PRIMARY KEY,
	continent_code         VARCHAR(2),
	city_name              VARCHAR(200),
	country_iso_code       VARCHAR(2) NOT NULL,
	country_name           VARCHAR(200) NOT NULL,
	subdivision_1_iso_code VARCHAR(3),
	subdivision_1_name     VARCHAR(200),
	subdivision_2_iso_code VARCHAR(3),
	subdivision_2_name     VARCHAR(200)
) DEFAULT CHARSET = utf8mb4`,
	`CREATE TABLE IF NOT EXISTS geoip_blocks (
	network     VARCHAR(43) NOT NULL PRIMARY KEY,
	geoname_id  INT NOT NULL,
	postal_code VARCHAR(20)
) DEFAULT CHARSET = utf8mb4`,
	`DROP PROCEDURE IF EXISTS add_geoname_location`,
	`CREATE PROCEDURE add_geoname_location(
	IN p_geoname_id INT,
	IN p_continent_code VARCHAR(2),
	IN p_city_name VARCHAR(200),
	IN p_country_iso_code VARCHAR(2),
	IN p_country_name VARCHAR(200),
	IN p_subdivision_1_iso_code VARCHAR(3),
	IN p_subdivision_1_name VARCHAR(200),
	IN p_subdivision_2_iso_code VARCHAR(3),
	IN p_subdivision_2_name VARCHAR(200))
BEGIN
	REPLACE INTO geoname_locations VALUES (
		p_geoname_id, p_continent_code, p_city_name, p_country_iso_code, p_country_name,
		p_subdivision_1_iso_code, p_subdivision_1_name, p_subdivision_2_iso_code, p_subdivision_2_name);
END`,
	`DROP PROCEDURE IF EXISTS add_geoip`,
	`CREATE PROCEDURE add_geoip(
	IN p_network VARCHAR(43),
	IN p_geoname_id INT,
	IN p_postal_code VARCHAR(20))
BEGIN
	REPLACE INTO geoip_blocks VALUES (p_network, p_geoname_id, p_postal_code);
END`,
}
